package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gpgpu"
	"github.com/gogpu/gpgpu/backend"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show device capabilities",
		Long: `Display the capability record of every registered backend.

Backends that cannot be opened on this machine are listed with the
reason.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.OutOrStdout())
		},
	}
}

func runInfo(w io.Writer) error {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "gpgpu %s\n\n", gpgpu.Version)

	names := backend.Available()
	if len(names) == 0 {
		return fmt.Errorf("no backends registered")
	}
	opened := 0
	for _, name := range names {
		dev, err := backend.Open(name)
		if err != nil {
			p.Fprintf(w, "%s: unavailable (%v)\n\n", name, err)
			continue
		}
		opened++
		printCapabilities(p, w, name, dev.Capabilities())
		dev.Close()
	}
	if opened == 0 {
		return fmt.Errorf("%w: none of %v could be opened", backend.ErrBackendNotAvailable, names)
	}
	return nil
}

func printCapabilities(p *message.Printer, w io.Writer, name string, c gpgpu.Capabilities) {
	p.Fprintf(w, "%s:\n", name)
	p.Fprintf(w, "   Renderer:           %s\n", c.Renderer)
	p.Fprintf(w, "   Vendor:             %s\n", c.Vendor)
	p.Fprintf(w, "   Shading language:   %s\n", c.ShadingLanguage)
	p.Fprintf(w, "   Max render targets: %d\n", c.MaxRenderTargets)
	p.Fprintf(w, "   Max inputs:         %d\n", c.MaxInputs)
	p.Fprintf(w, "   Max extent:         %d\n", c.MaxExtent)
	p.Fprintf(w, "   Max elements:       %d\n\n", c.MaxExtent*c.MaxExtent)
}
