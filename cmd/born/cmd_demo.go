package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/engine/engine"
	"github.com/born-ml/engine/ops"
	"github.com/born-ml/engine/tensor"
)

func newDemoCmd() *cobra.Command {
	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Compute y = (a+b)*a and its gradients",
		Args:  cobra.ExactArgs(0),
		RunE:  DemoHandler,
	}
	demoCmd.Flags().Float32("a", 2, "Value of a")
	demoCmd.Flags().Float32("b", 3, "Value of b")
	demoCmd.Flags().String("backend", "", "Backend to run on (default: best available)")
	demoCmd.Flags().Bool("profile", false, "Print the kernels the computation ran")
	return demoCmd
}

// DemoHandler runs the forward and backward pass of y = (a+b)*a on the default engine.
func DemoHandler(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, _ := cmd.Flags().GetFloat32("a")
	b, _ := cmd.Flags().GetFloat32("b")
	backendName, _ := cmd.Flags().GetString("backend")
	profile, _ := cmd.Flags().GetBool("profile")

	e := engine.Default()
	if backendName != "" {
		if err := e.SetBackend(ctx, backendName); err != nil {
			return err
		}
	}

	var y *tensor.Tensor
	var grads []*tensor.Tensor
	run := func() error {
		return e.Tidy("demo", func() error {
			ta, err := engine.Scalar(e, a)
			if err != nil {
				return err
			}
			tb, err := engine.Scalar(e, b)
			if err != nil {
				return err
			}
			y, grads, err = e.Gradients(func() (*tensor.Tensor, error) {
				sum, err := ops.Add(e, ta, tb)
				if err != nil {
					return nil, err
				}
				return ops.Mul(e, sum, ta)
			}, []*tensor.Tensor{ta, tb}, nil)
			if err != nil {
				return err
			}
			e.Keep(y)
			for _, g := range grads {
				e.Keep(g)
			}
			return nil
		})
	}

	if profile {
		info, err := e.Profile(run)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), info)
	} else if err := run(); err != nil {
		return err
	}
	defer func() {
		_ = e.Dispose(append([]*tensor.Tensor{y}, grads...)...)
	}()

	values, err := e.ReadAll(ctx, append([]*tensor.Tensor{y}, grads...)...)
	if err != nil {
		return err
	}
	name, err := e.BackendName()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "backend: %s\n", name)
	fmt.Fprintf(out, "y = (a+b)*a = %v\n", values[0])
	fmt.Fprintf(out, "dy/da = %v\n", values[1])
	fmt.Fprintf(out, "dy/db = %v\n", values[2])
	fmt.Fprintf(out, "memory: %s\n", e.Memory())
	return nil
}
