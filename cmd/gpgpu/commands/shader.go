package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gogpu/naga"
	"github.com/spf13/cobra"

	"github.com/gogpu/gpgpu"
	"github.com/gogpu/gpgpu/internal/samples"
)

type shaderOptions struct {
	kernel   string
	bodyFile string
	inputs   []string
	outputs  []string
	elemType string
	vector   int
	validate bool
}

func newShaderCmd() *cobra.Command {
	opts := &shaderOptions{}
	cmd := &cobra.Command{
		Use:   "shader",
		Short: "Print the program synthesized for a kernel",
		Long: `Print the complete WGSL module generated for a kernel body: the
preamble, the input accessors, the uniforms, the output variables and
the fragment entry point.

The body is a sample kernel (--kernel) or a file (--body-file) whose
argument names are given with --inputs and --outputs.`,
		Example: `  gpgpu shader --kernel saxpy
  gpgpu shader --body-file blur.wgsl --inputs src --outputs dst --type uint8 --vector 4 --validate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShader(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.kernel, "kernel", "k", "", "sample kernel: "+strings.Join(samples.Names(), ", "))
	cmd.Flags().StringVarP(&opts.bodyFile, "body-file", "f", "", "file holding a kernel body")
	cmd.Flags().StringSliceVar(&opts.inputs, "inputs", nil, "input names of the body file")
	cmd.Flags().StringSliceVar(&opts.outputs, "outputs", nil, "output names of the body file")
	cmd.Flags().StringVarP(&opts.elemType, "type", "t", "float32", "element type of every argument")
	cmd.Flags().IntVar(&opts.vector, "vector", 1, "vector width of every argument (1-4)")
	cmd.Flags().BoolVar(&opts.validate, "validate", false, "translate the program with naga and report errors")
	cmd.MarkFlagsMutuallyExclusive("kernel", "body-file")
	return cmd
}

func runShader(w io.Writer, opts *shaderOptions) error {
	k, err := opts.resolve()
	if err != nil {
		return err
	}
	et, err := parseElementType(opts.elemType)
	if err != nil {
		return err
	}
	f, err := gpgpu.DeriveFormat(et, opts.vector)
	if err != nil {
		return err
	}

	desc := programFor(k, f)
	desc.Source = gpgpu.SynthesizeProgram(desc)
	fmt.Fprint(w, desc.Source)

	if opts.validate {
		if _, err := naga.Compile(desc.Source); err != nil {
			return &gpgpu.ShaderCompileError{Diagnostic: err.Error(), Source: desc.Source}
		}
		fmt.Fprintln(w, "// validated")
	}
	return nil
}

func (o *shaderOptions) resolve() (samples.Kernel, error) {
	if o.bodyFile == "" {
		name := o.kernel
		if name == "" {
			name = samples.Identity.Name
		}
		k, ok := samples.All()[name]
		if !ok {
			return samples.Kernel{}, fmt.Errorf("unknown kernel %q (have %s)", name, strings.Join(samples.Names(), ", "))
		}
		return k, nil
	}

	body, err := os.ReadFile(o.bodyFile)
	if err != nil {
		return samples.Kernel{}, err
	}
	if len(o.outputs) == 0 {
		return samples.Kernel{}, fmt.Errorf("--outputs is required with --body-file")
	}
	return samples.Kernel{
		Name:    o.bodyFile,
		Body:    string(body),
		Inputs:  o.inputs,
		Outputs: o.outputs,
	}, nil
}

// programFor lays out k as a single step with every argument in format f.
func programFor(k samples.Kernel, f gpgpu.FormatDescriptor) *gpgpu.ProgramDescriptor {
	desc := &gpgpu.ProgramDescriptor{Label: k.Name, Body: k.Body}
	binding := gpgpu.SizeBinding + 1
	for _, name := range k.Inputs {
		desc.Inputs = append(desc.Inputs, gpgpu.ProgramInput{Name: name, Binding: binding, Format: f})
		binding++
	}
	for _, u := range k.Uniforms {
		desc.Uniforms = append(desc.Uniforms, gpgpu.ProgramUniform{Name: u.Name, Binding: binding, Kind: u.Kind})
		binding++
	}
	for slot, name := range k.Outputs {
		desc.Outputs = append(desc.Outputs, gpgpu.ProgramOutput{Name: name, Slot: slot, Format: f})
	}
	return desc
}

func parseElementType(s string) (gpgpu.ElementType, error) {
	for t := gpgpu.ElementType(0); t.Valid(); t++ {
		if t.String() == strings.ToLower(s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown element type %q", gpgpu.ErrConfiguration, s)
}
