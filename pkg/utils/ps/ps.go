package ps

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type CPU struct {
	Percent float64 `json:"percent"`
}

type Memory struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`

	SwapTotal       uint64  `json:"swapTotal"`
	SwapUsed        uint64  `json:"swapUsed"`
	SwapUsedPercent float64 `json:"swapUsedPercent"`
}

type Disk struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
	Human       string  `json:"human"`
}

// Status is a host snapshot served next to the camera state.
type Status struct {
	Hostname string        `json:"hostname"`
	Uptime   time.Duration `json:"uptime"`
	CPU      CPU           `json:"cpu"`
	Memory   Memory        `json:"memory"`
	Media    Disk          `json:"media"`
}

func CPUStatus() (CPU, error) {
	list, err := cpu.Percent(time.Millisecond*50, false)
	if err != nil {
		return CPU{}, err
	}
	if len(list) == 0 {
		return CPU{}, nil
	}

	return CPU{
		Percent: list[0],
	}, nil
}

func MemoryStatus() (Memory, error) {
	memory, err := mem.VirtualMemory()
	if err != nil {
		return Memory{}, err
	}
	swapMemory, err := mem.SwapMemory()
	if err != nil {
		return Memory{}, err
	}

	return Memory{
		Total:       memory.Total,
		Used:        memory.Used,
		UsedPercent: memory.UsedPercent,

		SwapTotal:       swapMemory.Total,
		SwapUsed:        swapMemory.Used,
		SwapUsedPercent: swapMemory.UsedPercent,
	}, nil
}

// DiskStatus reports the usage of the file system holding path.
func DiskStatus(path string) (Disk, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return Disk{}, err
	}

	return Disk{
		Path:        path,
		Total:       usage.Total,
		Used:        usage.Used,
		UsedPercent: usage.UsedPercent,
		Human:       humanize.Bytes(usage.Used) + " / " + humanize.Bytes(usage.Total),
	}, nil
}

// HostStatus collects cpu, memory and the usage of the media directory.
func HostStatus(mediaDir string) (Status, error) {
	var (
		s   Status
		err error
	)
	info, err := host.Info()
	if err != nil {
		return s, err
	}
	s.Hostname = info.Hostname
	s.Uptime = time.Duration(info.Uptime) * time.Second
	if s.CPU, err = CPUStatus(); err != nil {
		return s, err
	}
	if s.Memory, err = MemoryStatus(); err != nil {
		return s, err
	}
	if s.Media, err = DiskStatus(mediaDir); err != nil {
		return s, err
	}

	return s, nil
}
