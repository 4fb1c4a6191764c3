package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"camctl/pkg/camera"
	"camctl/pkg/ov"
	"camctl/pkg/types"
	"camctl/pkg/utils"
)

type report struct {
	Path     string       `json:"path"`
	Sizes    []types.Size `json:"sizes"`
	Controls []ov.Config  `json:"controls"`
}

func main() {
	devName := "/dev/video0"
	text := false
	flag.StringVar(&devName, "d", devName, "device name (path)")
	flag.BoolVar(&text, "text", text, "print controls as text")
	flag.Parse()
	logger := utils.GetLogger()

	p, err := camera.ProbeDevice(devName)
	if err != nil {
		logger.Fatal(err)
	}

	if text {
		for _, s := range p.Sizes {
			fmt.Println(s)
		}
		for _, ctrl := range p.Controls {
			fmt.Print(camera.CtrlToString(ctrl))
			for i, m := range ov.NewConfig(ctrl).MenuItems {
				fmt.Printf("\t(%d) Menu %s\n", i, m)
			}
		}
		return
	}

	r := report{Path: p.Path, Sizes: p.Sizes}
	for _, ctrl := range p.Controls {
		r.Controls = append(r.Controls, ov.NewConfig(ctrl))
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	if err := enc.Encode(r); err != nil {
		logger.Fatal(err)
	}
}
