package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// argList collects repeated -arg flags.
type argList []string

func (a *argList) String() string { return strings.Join(*a, ",") }

func (a *argList) Set(v string) error {
	*a = append(*a, v)
	return nil
}

func main() {
	var args argList
	var (
		configFile  = flag.String("config", "", "Path to YAML config file")
		manifest    = flag.String("manifest", "", "Path to a class manifest (YAML)")
		wasmFile    = flag.String("wasm", "", "Path to the core wasm module the manifest describes")
		className   = flag.String("class", "", "Class to use (Namespace.Name, or a unique bare name)")
		method      = flag.String("method", "", "Method to call")
		static      = flag.Bool("static", false, "Call a static method instead of constructing an instance")
		list        = flag.Bool("list", false, "List loaded classes and exit")
		check       = flag.Bool("check", false, "Validate the manifest against its JSON schema before loading")
		schema      = flag.Bool("schema", false, "Print the config and manifest JSON schemas and exit")
		verbose     = flag.Bool("v", false, "Development logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Var(&args, "arg", "Method argument, repeatable; parsed by the declared parameter type")
	flag.Parse()

	if *schema {
		if err := printSchemas(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	opts := sessionOptions{
		configFile: *configFile,
		manifest:   *manifest,
		wasmFile:   *wasmFile,
		check:      *check,
		verbose:    *verbose,
	}
	if opts.configFile == "" && opts.manifest == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -config <bridge.yaml> [-list] [-class C -method M [-arg v]... [-static]]")
		fmt.Fprintln(os.Stderr, "       run -manifest <classes.yaml> -wasm <module.wasm> [-check] ...")
		fmt.Fprintln(os.Stderr, "       run -config <bridge.yaml> -i  (interactive mode)")
		fmt.Fprintln(os.Stderr, "       run -schema")
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(opts, *className, *method, args, *static, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts sessionOptions, className, method string, args []string, static, listOnly bool) error {
	ctx := context.Background()

	sess, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer sess.close(ctx)

	classes := sess.classes()
	fmt.Printf("Engine: %s\n", sess.engineName)
	fmt.Printf("Domain: %s\n", sess.sys.ScriptDomain().Name())
	fmt.Printf("Classes: %d\n", len(classes))
	for _, c := range classes {
		fmt.Printf("\n%s\n", c.name)
		for _, m := range c.methods {
			fmt.Printf("  %s\n", m.label())
		}
	}

	if listOnly || method == "" {
		return nil
	}
	if className == "" {
		return fmt.Errorf("-method needs -class")
	}

	fmt.Printf("\nCalling %s::%s(%s)...\n", className, method, strings.Join(args, ", "))
	out, err := sess.invoke(ctx, className, method, args, static)
	if err != nil {
		return fmt.Errorf("call %s::%s: %w", className, method, err)
	}
	fmt.Printf("Result: %s\n", out)
	return nil
}
