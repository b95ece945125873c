// Package nativebridge provides dynamic marshaling and invocation against a
// metadata-described native object system.
//
// The library binds a Go host to native code whose types and functions are
// known only at runtime, through descriptors loaded into a repository. Values
// cross the boundary through a marshaler driven by those descriptors; native
// structs and objects surface as identity-cached compound handles; functions
// are invoked through call frames assembled from runtime signatures,
// including an out-of-band error channel.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	nativebridge/        Root package with Memory, Allocator, Dispatcher interfaces
//	├── engine/          High-level API: find/get/gtype/cast boundary operations
//	├── invoke/          Call-frame assembly and execution from runtime signatures
//	├── marshal/         Value conversion between Go values and native slots
//	├── resource/        Compound handles and the address-keyed identity cache
//	├── typeinfo/        Descriptor model, repository, GType registry, YAML loader
//	├── native/          Native system backends: in-process heap and wazero adapter
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Load a namespace definition, wire a native system, and call a function:
//
//	repo := typeinfo.NewRepository()
//	if _, err := typeinfo.LoadYAML(repo, defYAML); err != nil {
//	    log.Fatal(err)
//	}
//
//	heap, err := native.NewHeap(1 << 20)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	table := native.NewTable(heap, heap)
//	table.Register("demo_add", addFunc)
//
//	eng, err := engine.New(engine.Config{
//	    Repository: repo,
//	    System:     native.NewSystem(heap, table),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	desc, err := eng.Find("demo.add", "")
//	fn, err := eng.Get(desc)
//	res, err := fn.(*engine.Callable).Call(ctx, 2, 3)
//	fmt.Println(res.Value()) // 5
//
// # Error Channels
//
// Failures travel on exactly one of three channels: misuse (bad arguments,
// unknown fields, unsupported descriptors) returns a Go error; domain
// failures reported by the native side surface as a non-OK invoke.Result
// carrying code and message without a Go error; unresolved lookups return a
// typed not-found error callers can match and recover from.
//
// # Thread Safety
//
// Repository and Engine are safe for concurrent use; the identity cache and
// invoker cache serialize internally. Compound handles and call frames are
// NOT thread-safe and should be used by a single goroutine, or access must
// be synchronized.
//
// # Memory Model
//
// Addresses are 32-bit offsets into the backend's linear memory; address 0
// is the native null. Handles the engine allocates are freed exactly when
// their reference count reaches zero. Handles wrapping foreign memory are
// never freed by the engine.
package nativebridge
