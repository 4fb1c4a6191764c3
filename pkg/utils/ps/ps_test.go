package ps

import (
	"testing"
)

func TestHostStatus(t *testing.T) {
	s, err := HostStatus(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if s.Memory.Total == 0 {
		t.Fatal("no memory reported")
	}
	if s.Media.Total == 0 || s.Media.Human == "" {
		t.Fatalf("media disk %+v", s.Media)
	}
	if s.CPU.Percent < 0 || s.CPU.Percent > 100 {
		t.Fatalf("cpu %f", s.CPU.Percent)
	}
}
