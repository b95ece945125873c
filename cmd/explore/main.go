package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tetratelabs/wazero"
	"golang.org/x/term"

	nativebridge "github.com/wippyai/native-bridge"
	"github.com/wippyai/native-bridge/engine"
	"github.com/wippyai/native-bridge/native"
	"github.com/wippyai/native-bridge/typeinfo"
)

func main() {
	var (
		defsDir     = flag.String("defs", ".", "Directory holding <namespace>.yaml definitions")
		namespace   = flag.String("ns", "", "Namespace to load")
		wasmFile    = flag.String("wasm", "", "WebAssembly guest exporting the native symbols (optional)")
		callName    = flag.String("call", "", "Qualified function to invoke (namespace.name)")
		argList     = flag.String("args", "", "Comma-separated arguments for -call")
		list        = flag.Bool("list", false, "List descriptors and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *namespace == "" {
		fmt.Fprintln(os.Stderr, "Usage: explore -ns <namespace> [-defs dir] [-wasm guest.wasm] -list")
		fmt.Fprintln(os.Stderr, "       explore -ns <namespace> -call <namespace.func> [-args a,b,...]")
		fmt.Fprintln(os.Stderr, "       explore -ns <namespace> -i  (interactive mode)")
		os.Exit(1)
	}

	if err := run(*defsDir, *namespace, *wasmFile, *callName, *argList, *list, *interactive); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(defsDir, namespace, wasmFile, callName, argList string, list, interactive bool) error {
	ctx := context.Background()

	eng, cleanup, err := newEngine(ctx, defsDir, namespace, wasmFile)
	if err != nil {
		return err
	}
	defer cleanup()

	switch {
	case interactive:
		// The TUI needs a real terminal; fall back to a plain listing
		// when output is piped.
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "stdout is not a terminal, listing instead")
			return listDescriptors(eng, namespace)
		}
		return runInteractive(eng, namespace, wasmFile != "")

	case callName != "":
		return callOnce(ctx, eng, callName, argList)

	case list:
		return listDescriptors(eng, namespace)

	default:
		return listDescriptors(eng, namespace)
	}
}

// newEngine loads the namespace from its YAML definition and, when a guest
// is given, attaches it as the native system. Without a guest the engine
// still resolves and inspects descriptors; calls fail with structured
// errors.
func newEngine(ctx context.Context, defsDir, namespace, wasmFile string) (*engine.Engine, func(), error) {
	repo := typeinfo.NewRepository()
	repo.AddLoader(typeinfo.DirLoader(defsDir))
	if _, err := repo.Require(namespace); err != nil {
		return nil, nil, fmt.Errorf("load namespace %s: %w", namespace, err)
	}

	var (
		sys     nativebridge.System
		cleanup = func() {}
	)
	if wasmFile != "" {
		data, err := os.ReadFile(wasmFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read guest: %w", err)
		}
		r := wazero.NewRuntime(ctx)
		mod, err := r.Instantiate(ctx, data)
		if err != nil {
			r.Close(ctx)
			return nil, nil, fmt.Errorf("instantiate guest: %w", err)
		}
		ws, err := native.NewWazeroSystem(mod)
		if err != nil {
			r.Close(ctx)
			return nil, nil, fmt.Errorf("attach guest: %w", err)
		}
		sys = ws.System()
		cleanup = func() {
			ws.Close(ctx)
			r.Close(ctx)
		}
	}

	eng, err := engine.New(engine.Config{Repository: repo, System: sys})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return eng, cleanup, nil
}

func listDescriptors(eng *engine.Engine, namespace string) error {
	ns, ok := eng.Repository().Namespace(namespace)
	if !ok {
		return fmt.Errorf("namespace %s not loaded", namespace)
	}

	fmt.Printf("Namespace: %s %s\n\n", ns.Name, ns.Version)
	for _, name := range ns.Names() {
		info, err := eng.Repository().Resolve(namespace, name)
		if err != nil {
			return err
		}
		fmt.Printf("  %-10s %s\n", kindOf(info), summarize(info))
	}
	return nil
}

func callOnce(ctx context.Context, eng *engine.Engine, name, argList string) error {
	handle, err := eng.Find(name, "")
	if err != nil {
		return err
	}
	v, err := eng.Get(handle)
	if err != nil {
		return err
	}
	c, ok := v.(*engine.Callable)
	if !ok {
		return fmt.Errorf("%s is not callable", name)
	}

	var raw []string
	if argList != "" {
		raw = strings.Split(argList, ",")
	}
	args, err := parseArgs(c.Info(), raw)
	if err != nil {
		return err
	}

	fmt.Printf("Calling %s\n", signature(c.Info()))
	res, err := c.Call(ctx, args...)
	if err != nil {
		return err
	}
	if !res.OK {
		fmt.Printf("Native error %d: %s\n", res.Err.Code, res.Err.Message)
		return nil
	}
	fmt.Printf("Result: %s\n", renderValues(res.Values))
	return nil
}

// parseArgs converts CLI strings into host values, one per in or inout
// parameter in declared order.
func parseArgs(info *typeinfo.CallableInfo, raw []string) ([]any, error) {
	var wanted []typeinfo.Param
	for _, p := range info.Sig.Params {
		if p.Direction == typeinfo.DirIn || p.Direction == typeinfo.DirInOut {
			wanted = append(wanted, p)
		}
	}
	if len(raw) != len(wanted) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", info.String(), len(wanted), len(raw))
	}

	args := make([]any, len(raw))
	for i, p := range wanted {
		v, err := parseArg(strings.TrimSpace(raw[i]), p.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", p.Name, err)
		}
		args[i] = v
	}
	return args, nil
}
