package commands

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gpgpu"
	"github.com/gogpu/gpgpu/imagebuf"
	"github.com/gogpu/gpgpu/internal/samples"
)

type runOptions struct {
	kernel string
	size   int
	factor float32
	show   int
	image  string
	out    string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a sample kernel",
		Long: `Execute a sample kernel on the selected device and print the first
elements of every output.

Numeric kernels run over float32 buffers filled with 0, 1, 2, ...
The invert kernel reads a PNG image (--image) and writes the result
to --out.`,
		Example: `  gpgpu run --kernel scale --size 1000000 --factor 0.5
  gpgpu run --kernel invert --image photo.png --out inverted.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKernel(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.kernel, "kernel", "k", samples.Increment.Name, "sample kernel: "+strings.Join(samples.Names(), ", "))
	cmd.Flags().IntVarP(&opts.size, "size", "n", 16, "number of elements")
	cmd.Flags().Float32Var(&opts.factor, "factor", 2, "value of the kernel's float uniform")
	cmd.Flags().IntVar(&opts.show, "show", 8, "number of elements to print per output")
	cmd.Flags().StringVar(&opts.image, "image", "", "input PNG for the invert kernel")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "out.png", "output PNG for the invert kernel")

	_ = viper.BindPFlag("run.size", cmd.Flags().Lookup("size"))
	return cmd
}

func runKernel(w io.Writer, opts *runOptions) error {
	k, ok := samples.All()[opts.kernel]
	if !ok {
		return fmt.Errorf("unknown kernel %q (have %s)", opts.kernel, strings.Join(samples.Names(), ", "))
	}
	if n := viper.GetInt("run.size"); n > 0 {
		opts.size = n
	}

	dev, err := openDevice()
	if err != nil {
		return err
	}
	defer dev.Close()

	p := message.NewPrinter(language.English)
	p.Fprintf(w, "device: %s\n", dev.Capabilities().Renderer)

	if k.Name == samples.Invert.Name {
		return runImage(p, w, dev, k, opts)
	}
	return runNumeric(p, w, dev, k, opts)
}

func runNumeric(p *message.Printer, w io.Writer, dev gpgpu.Device, k samples.Kernel, opts *runOptions) error {
	var buffers []gpgpu.Buffer
	var outputs []*gpgpu.HostBuffer[float32]
	defer func() {
		for _, b := range buffers {
			b.Delete()
		}
	}()

	data := make([]float32, opts.size)
	for i := range data {
		data[i] = float32(i)
	}
	for _, name := range k.Inputs {
		b, err := gpgpu.NewHostBuffer(dev, data, gpgpu.WithLabel(name))
		if err != nil {
			return err
		}
		buffers = append(buffers, b)
	}
	for _, name := range k.Outputs {
		b, err := gpgpu.AllocHostBuffer[float32](dev, opts.size, gpgpu.WithLabel(name))
		if err != nil {
			return err
		}
		buffers = append(buffers, b)
		outputs = append(outputs, b)
	}

	kio, err := k.IO(buffers...)
	if err != nil {
		return err
	}
	kernel, err := gpgpu.NewKernel(dev, kio, k.Body)
	if err != nil {
		return err
	}
	defer kernel.Delete()

	uniforms := gpgpu.Uniforms{}
	for _, u := range k.Uniforms {
		if u.Kind == gpgpu.UniformFloat {
			uniforms[u.Name] = gpgpu.Float(opts.factor)
		}
	}

	start := time.Now()
	if err := kernel.Exec(uniforms); err != nil {
		return err
	}
	p.Fprintf(w, "%s: %d elements in %d step(s), %v\n", k.Name, opts.size, len(kernel.Steps()), time.Since(start))

	for i, out := range outputs {
		vals := out.Data()
		n := min(opts.show, len(vals))
		p.Fprintf(w, "%s: %v", k.Outputs[i], vals[:n])
		if n < len(vals) {
			p.Fprintf(w, " ... (%d more)", len(vals)-n)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func runImage(p *message.Printer, w io.Writer, dev gpgpu.Device, k samples.Kernel, opts *runOptions) error {
	if opts.image == "" {
		return fmt.Errorf("%s needs --image", k.Name)
	}
	img, err := readPNG(opts.image)
	if err != nil {
		return err
	}
	width, height := img.Bounds().Dx(), img.Bounds().Dy()

	src, err := imagebuf.FromImage(dev, img, gpgpu.WithLabel("image"))
	if err != nil {
		return err
	}
	defer src.Delete()
	dst, err := imagebuf.Alloc(dev, width, height, gpgpu.WithLabel("result"))
	if err != nil {
		return err
	}
	defer dst.Delete()

	kio, err := k.IO(src, dst)
	if err != nil {
		return err
	}
	kernel, err := gpgpu.NewKernel(dev, kio, k.Body)
	if err != nil {
		return err
	}
	defer kernel.Delete()

	start := time.Now()
	if err := kernel.Exec(nil); err != nil {
		return err
	}
	out, err := imagebuf.ToImage(dst.Data(), width, height)
	if err != nil {
		return err
	}
	if err := writePNG(opts.out, out); err != nil {
		return err
	}
	p.Fprintf(w, "%s: %dx%d pixels in %v, saved to %s\n", k.Name, width, height, time.Since(start), opts.out)
	return nil
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
