package invoke

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	bridgeerrors "github.com/wippyai/native-bridge/errors"
	"github.com/wippyai/native-bridge/marshal"
	"github.com/wippyai/native-bridge/resource"
	"github.com/wippyai/native-bridge/typeinfo"
)

// mockMemory implements nativebridge.Memory for testing
type mockMemory struct {
	data []byte
}

func newMockMemory(size int) *mockMemory {
	return &mockMemory{data: make([]byte, size)}
}

func (m *mockMemory) Read(offset uint32, length uint32) ([]byte, error) {
	return m.data[offset : offset+length], nil
}

func (m *mockMemory) Write(offset uint32, data []byte) error {
	copy(m.data[offset:], data)
	return nil
}

func (m *mockMemory) ReadU8(offset uint32) (uint8, error) { return m.data[offset], nil }

func (m *mockMemory) ReadU16(offset uint32) (uint16, error) {
	return binary.LittleEndian.Uint16(m.data[offset:]), nil
}

func (m *mockMemory) ReadU32(offset uint32) (uint32, error) {
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

func (m *mockMemory) ReadU64(offset uint32) (uint64, error) {
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

func (m *mockMemory) WriteU8(offset uint32, value uint8) error {
	m.data[offset] = value
	return nil
}

func (m *mockMemory) WriteU16(offset uint32, value uint16) error {
	binary.LittleEndian.PutUint16(m.data[offset:], value)
	return nil
}

func (m *mockMemory) WriteU32(offset uint32, value uint32) error {
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	return nil
}

func (m *mockMemory) WriteU64(offset uint32, value uint64) error {
	binary.LittleEndian.PutUint64(m.data[offset:], value)
	return nil
}

// mockAllocator implements nativebridge.Allocator and records frees
type mockAllocator struct {
	offset uint32
	freed  []uint32
}

func newMockAllocator() *mockAllocator {
	return &mockAllocator{offset: 1024}
}

func (a *mockAllocator) Alloc(size, align uint32) (uint32, error) {
	a.offset = (a.offset + align - 1) &^ (align - 1)
	ptr := a.offset
	a.offset += size
	return ptr, nil
}

func (a *mockAllocator) Free(ptr, size, align uint32) {
	a.freed = append(a.freed, ptr)
}

func (a *mockAllocator) hasFreed(ptr uint32) bool {
	for _, p := range a.freed {
		if p == ptr {
			return true
		}
	}
	return false
}

// mockDispatcher records frames and runs an optional callee body
type mockDispatcher struct {
	fn    func(ctx context.Context, entry uint32, frame []uint64) error
	calls int
	last  []uint64
}

func (d *mockDispatcher) Dispatch(ctx context.Context, entry uint32, frame []uint64) error {
	d.calls++
	d.last = append([]uint64(nil), frame...)
	if d.fn != nil {
		return d.fn(ctx, entry, frame)
	}
	return nil
}

type testEnv struct {
	mem   *mockMemory
	alloc *mockAllocator
	cache *resource.Cache
	m     *marshal.Marshaler
	disp  *mockDispatcher
}

func newTestEnv() *testEnv {
	mem := newMockMemory(64 * 1024)
	alloc := newMockAllocator()
	cache := resource.NewCache(mem, alloc)
	return &testEnv{
		mem:   mem,
		alloc: alloc,
		cache: cache,
		m:     marshal.New(mem, alloc, cache),
		disp:  &mockDispatcher{},
	}
}

func (e *testEnv) deps() Deps {
	return Deps{
		Marshaler:  e.m,
		Dispatcher: e.disp,
		Memory:     e.mem,
		Allocator:  e.alloc,
	}
}

func pointInfo() *typeinfo.StructInfo {
	s := &typeinfo.StructInfo{
		InfoHeader: typeinfo.InfoHeader{Namespace: "demo", Name: "Point"},
		Fields: []typeinfo.FieldInfo{
			{Name: "x", Type: typeinfo.Scalar(typeinfo.KindInt32), Readable: true, Writable: true},
			{Name: "y", Type: typeinfo.Scalar(typeinfo.KindInt32), Readable: true, Writable: true},
		},
	}
	s.Size, s.Align = typeinfo.ComputeLayout(s.Fields, 0, 1)
	return s
}

func callableOf(name string, sig typeinfo.Signature, flags typeinfo.CallableFlags, container typeinfo.Info) *typeinfo.CallableInfo {
	return &typeinfo.CallableInfo{
		InfoHeader: typeinfo.InfoHeader{Namespace: "demo", Name: name},
		Symbol:     "demo_" + name,
		Flags:      flags,
		Container:  container,
		Sig:        &sig,
	}
}

func inParam(name string, kind typeinfo.Kind) typeinfo.Param {
	return typeinfo.Param{Name: name, Type: typeinfo.Scalar(kind), Direction: typeinfo.DirIn}
}

func TestCallMarshalsArgumentsInOrder(t *testing.T) {
	env := newTestEnv()

	params := make([]typeinfo.Param, 10)
	for i := range params {
		params[i] = inParam(fmt.Sprintf("a%d", i), typeinfo.KindInt32)
	}
	info := callableOf("spread", typeinfo.Signature{
		Params: params,
		Return: typeinfo.Scalar(typeinfo.KindVoid),
	}, 0, nil)

	inv, err := Build(info, 7, env.deps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	args := make([]any, 10)
	for i := range args {
		args[i] = i
	}
	res, err := inv.Call(context.Background(), args...)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !res.OK {
		t.Fatal("expected OK result")
	}

	if len(env.disp.last) != 11 {
		t.Fatalf("expected 11 frame slots, got %d", len(env.disp.last))
	}
	for i := 0; i < 10; i++ {
		if env.disp.last[1+i] != uint64(i) {
			t.Errorf("slot %d = %d, want %d", 1+i, env.disp.last[1+i], i)
		}
	}
	if len(res.Values) != 0 {
		t.Errorf("void call must produce no values, got %v", res.Values)
	}
}

func TestCallReturnsConvertedValues(t *testing.T) {
	env := newTestEnv()
	env.disp.fn = func(_ context.Context, _ uint32, frame []uint64) error {
		a := int32(frame[1])
		b := int32(frame[2])
		frame[0] = uint64(uint32(a + b))
		return nil
	}

	info := callableOf("add", typeinfo.Signature{
		Params: []typeinfo.Param{inParam("a", typeinfo.KindInt32), inParam("b", typeinfo.KindInt32)},
		Return: typeinfo.Scalar(typeinfo.KindInt32),
	}, 0, nil)

	inv, err := Build(info, 1, env.deps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	res, err := inv.Call(context.Background(), int32(40), int32(2))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !res.OK {
		t.Fatal("expected OK result")
	}
	if res.Value() != int32(42) {
		t.Errorf("expected int32(42), got %v (%T)", res.Value(), res.Value())
	}
}

func TestCallSelfSlot(t *testing.T) {
	env := newTestEnv()
	info := pointInfo()

	method := callableOf("translate", typeinfo.Signature{
		Params: []typeinfo.Param{inParam("dx", typeinfo.KindInt32)},
		Return: typeinfo.Scalar(typeinfo.KindVoid),
	}, typeinfo.FlagMethod, info)

	inv, err := Build(method, 2, env.deps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	c, err := env.cache.Wrap(info, 0x2000)
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	res, err := inv.Call(context.Background(), c, int32(5))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !res.OK {
		t.Fatal("expected OK result")
	}
	if env.disp.last[1] != 0x2000 {
		t.Errorf("self slot = %#x, want 0x2000", env.disp.last[1])
	}
	if env.disp.last[2] != 5 {
		t.Errorf("dx slot = %d, want 5", env.disp.last[2])
	}

	// missing self is an arity misuse, reported before dispatch
	calls := env.disp.calls
	_, err = inv.Call(context.Background())
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseInvoke, Kind: bridgeerrors.KindArgumentCount}) {
		t.Errorf("expected argument count error, got %v", err)
	}
	if env.disp.calls != calls {
		t.Error("misuse must not reach the dispatcher")
	}

	// a non-compound self is a type misuse
	_, err = inv.Call(context.Background(), "not a point", int32(5))
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseEncode, Kind: bridgeerrors.KindTypeMismatch}) {
		t.Errorf("expected type mismatch, got %v", err)
	}
}

func TestCallOutAndInOutParams(t *testing.T) {
	env := newTestEnv()
	env.disp.fn = func(_ context.Context, _ uint32, frame []uint64) error {
		frame[1] = frame[1] * 2 // inout: double in place
		frame[2] = 42           // out: written by the callee
		return nil
	}

	info := callableOf("mutate", typeinfo.Signature{
		Params: []typeinfo.Param{
			{Name: "val", Type: typeinfo.Scalar(typeinfo.KindInt32), Direction: typeinfo.DirInOut},
			{Name: "extra", Type: typeinfo.Scalar(typeinfo.KindInt32), Direction: typeinfo.DirOut},
		},
		Return: typeinfo.Scalar(typeinfo.KindVoid),
	}, 0, nil)

	inv, err := Build(info, 3, env.deps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	res, err := inv.Call(context.Background(), int32(21))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !res.OK {
		t.Fatal("expected OK result")
	}
	if len(res.Values) != 2 {
		t.Fatalf("expected 2 values, got %v", res.Values)
	}
	if res.Values[0] != int32(42) {
		t.Errorf("inout value = %v, want 42", res.Values[0])
	}
	if res.Values[1] != int32(42) {
		t.Errorf("out value = %v, want 42", res.Values[1])
	}
}

func TestCallCallerAllocatedOut(t *testing.T) {
	env := newTestEnv()
	env.disp.fn = func(_ context.Context, _ uint32, frame []uint64) error {
		// callee fills the caller-provided instance
		return env.mem.WriteU32(uint32(frame[1]), 7)
	}

	info := callableOf("measure", typeinfo.Signature{
		Params: []typeinfo.Param{{
			Name:            "size",
			Type:            typeinfo.Iface(pointInfo()),
			Direction:       typeinfo.DirOut,
			CallerAllocates: true,
		}},
		Return: typeinfo.Scalar(typeinfo.KindVoid),
	}, 0, nil)

	inv, err := Build(info, 4, env.deps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	res, err := inv.Call(context.Background())
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !res.OK || len(res.Values) != 1 {
		t.Fatalf("expected one value, got %+v", res)
	}

	c, ok := res.Values[0].(*resource.Compound)
	if !ok {
		t.Fatalf("expected a compound, got %T", res.Values[0])
	}
	if got, err := env.m.GetField(c, "x"); err != nil || got != int32(7) {
		t.Errorf("GetField x = %v, %v; want 7", got, err)
	}
	if c.Refs() != 1 {
		t.Errorf("host must hold the only reference, got %d", c.Refs())
	}

	// the host reference keeps the handle cached; releasing reclaims it
	addr := c.Addr()
	if env.cache.Len() != 1 {
		t.Errorf("expected one cached compound, got %d", env.cache.Len())
	}
	c.Release()
	if env.cache.Len() != 0 {
		t.Error("expected cache entry reclaimed")
	}
	if !env.alloc.hasFreed(addr) {
		t.Error("expected exclusive storage freed")
	}
}

func TestCallOptionalNullCompound(t *testing.T) {
	env := newTestEnv()

	info := callableOf("render", typeinfo.Signature{
		Params: []typeinfo.Param{{
			Name:      "clip",
			Type:      typeinfo.Iface(pointInfo()),
			Direction: typeinfo.DirIn,
			Nullable:  true,
		}},
		Return: typeinfo.Scalar(typeinfo.KindVoid),
	}, 0, nil)

	inv, err := Build(info, 5, env.deps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	res, err := inv.Call(context.Background(), nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !res.OK {
		t.Fatal("expected OK result")
	}
	if env.disp.last[1] != 0 {
		t.Errorf("nullable nil must encode as zero slot, got %#x", env.disp.last[1])
	}
}

func TestCallDomainError(t *testing.T) {
	env := newTestEnv()

	var recAddr, msgAddr uint32
	env.disp.fn = func(_ context.Context, _ uint32, frame []uint64) error {
		var err error
		msgAddr, err = marshal.WriteCString(env.mem, env.alloc, "boom", nil)
		if err != nil {
			return err
		}
		recAddr, err = env.alloc.Alloc(8, 4)
		if err != nil {
			return err
		}
		if err := env.mem.WriteU32(recAddr, 3); err != nil {
			return err
		}
		if err := env.mem.WriteU32(recAddr+4, msgAddr); err != nil {
			return err
		}
		frame[0] = 99 // discarded: the callee failed
		frame[len(frame)-1] = uint64(recAddr)
		return nil
	}

	info := callableOf("fails", typeinfo.Signature{
		Return: typeinfo.Scalar(typeinfo.KindInt32),
		Throws: true,
	}, 0, nil)

	inv, err := Build(info, 6, env.deps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	res, err := inv.Call(context.Background())
	if err != nil {
		t.Fatalf("domain failures must not raise, got %v", err)
	}
	if res.OK {
		t.Fatal("expected failed result")
	}
	if res.Err == nil || res.Err.Code != 3 || res.Err.Message != "boom" {
		t.Errorf("unexpected native error: %+v", res.Err)
	}
	if len(res.Values) != 0 {
		t.Errorf("failed calls must not produce values, got %v", res.Values)
	}
	if !env.alloc.hasFreed(recAddr) {
		t.Error("expected error record freed")
	}
	if !env.alloc.hasFreed(msgAddr) {
		t.Error("expected error message freed")
	}
}

func TestCallDispatcherFault(t *testing.T) {
	env := newTestEnv()
	env.disp.fn = func(_ context.Context, _ uint32, _ []uint64) error {
		return fmt.Errorf("unreachable executed")
	}

	info := callableOf("traps", typeinfo.Signature{
		Return: typeinfo.Scalar(typeinfo.KindVoid),
	}, 0, nil)

	inv, err := Build(info, 8, env.deps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	_, err = inv.Call(context.Background())
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseNative, Kind: bridgeerrors.KindTrap}) {
		t.Errorf("expected trap error, got %v", err)
	}
}

func TestCallMisuseBeforeDispatch(t *testing.T) {
	env := newTestEnv()

	info := callableOf("strict", typeinfo.Signature{
		Params: []typeinfo.Param{inParam("n", typeinfo.KindInt32)},
		Return: typeinfo.Scalar(typeinfo.KindVoid),
	}, 0, nil)

	inv, err := Build(info, 9, env.deps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	_, err = inv.Call(context.Background(), "not a number")
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseEncode, Kind: bridgeerrors.KindTypeMismatch}) {
		t.Errorf("expected type mismatch, got %v", err)
	}
	if env.disp.calls != 0 {
		t.Error("misuse must not reach the dispatcher")
	}

	// a required argument left absent is missing, not zero
	_, err = inv.Call(context.Background())
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseEncode, Kind: bridgeerrors.KindMissingValue}) {
		t.Errorf("expected missing value, got %v", err)
	}
}

func TestCallExtraArgsIgnored(t *testing.T) {
	env := newTestEnv()

	info := callableOf("lenient", typeinfo.Signature{
		Params: []typeinfo.Param{inParam("n", typeinfo.KindInt32)},
		Return: typeinfo.Scalar(typeinfo.KindVoid),
	}, 0, nil)

	inv, err := Build(info, 10, env.deps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	res, err := inv.Call(context.Background(), int32(1), "surplus", 3.5)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !res.OK {
		t.Fatal("expected OK result")
	}
}

func TestCallFreesTemporaries(t *testing.T) {
	env := newTestEnv()

	info := callableOf("greet", typeinfo.Signature{
		Params: []typeinfo.Param{
			{Name: "kept", Type: typeinfo.Scalar(typeinfo.KindString), Direction: typeinfo.DirIn},
			{Name: "given", Type: typeinfo.Scalar(typeinfo.KindString), Direction: typeinfo.DirIn, Transfer: typeinfo.TransferEverything},
		},
		Return: typeinfo.Scalar(typeinfo.KindVoid),
	}, 0, nil)

	inv, err := Build(info, 11, env.deps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	res, err := inv.Call(context.Background(), "hello", "yours")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !res.OK {
		t.Fatal("expected OK result")
	}

	kept := uint32(env.disp.last[1])
	given := uint32(env.disp.last[2])
	if !env.alloc.hasFreed(kept) {
		t.Error("transfer-none temporary must be freed after the call")
	}
	if env.alloc.hasFreed(given) {
		t.Error("transfer-everything argument belongs to the callee")
	}
}

func TestBuildRejectsUnsupportedSignatures(t *testing.T) {
	env := newTestEnv()

	callback := &typeinfo.CallableInfo{
		InfoHeader: typeinfo.InfoHeader{Namespace: "demo", Name: "on_click"},
	}
	info := callableOf("bad", typeinfo.Signature{
		Params: []typeinfo.Param{{Name: "cb", Type: typeinfo.Iface(callback), Direction: typeinfo.DirIn}},
		Return: typeinfo.Scalar(typeinfo.KindVoid),
	}, 0, nil)

	_, err := Build(info, 12, env.deps())
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseInvoke, Kind: bridgeerrors.KindUnsupported}) {
		t.Errorf("expected unsupported, got %v", err)
	}

	// void parameters cannot travel
	info = callableOf("voidparam", typeinfo.Signature{
		Params: []typeinfo.Param{{Name: "v", Type: typeinfo.Scalar(typeinfo.KindVoid), Direction: typeinfo.DirIn}},
		Return: typeinfo.Scalar(typeinfo.KindVoid),
	}, 0, nil)
	_, err = Build(info, 13, env.deps())
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseInvoke, Kind: bridgeerrors.KindUnsupported}) {
		t.Errorf("expected unsupported, got %v", err)
	}

	// caller-allocates only makes sense for compounds
	info = callableOf("badalloc", typeinfo.Signature{
		Params: []typeinfo.Param{{
			Name:            "n",
			Type:            typeinfo.Scalar(typeinfo.KindInt32),
			Direction:       typeinfo.DirOut,
			CallerAllocates: true,
		}},
		Return: typeinfo.Scalar(typeinfo.KindVoid),
	}, 0, nil)
	_, err = Build(info, 14, env.deps())
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseInvoke, Kind: bridgeerrors.KindInvalidInput}) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func BenchmarkCallScalars(b *testing.B) {
	env := newTestEnv()
	env.disp.fn = func(_ context.Context, _ uint32, frame []uint64) error {
		frame[0] = frame[1] + frame[2]
		return nil
	}

	info := callableOf("add", typeinfo.Signature{
		Params: []typeinfo.Param{inParam("a", typeinfo.KindInt32), inParam("b", typeinfo.KindInt32)},
		Return: typeinfo.Scalar(typeinfo.KindInt32),
	}, 0, nil)
	inv, err := Build(info, 1, env.deps())
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := inv.Call(ctx, int32(2), int32(3)); err != nil {
			b.Fatal(err)
		}
	}
}

func TestCacheIdempotentPerEntry(t *testing.T) {
	env := newTestEnv()
	cache := NewCache()

	info := callableOf("cached", typeinfo.Signature{
		Return: typeinfo.Scalar(typeinfo.KindVoid),
	}, 0, nil)

	a, err := cache.Build(info, 100, env.deps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	b, err := cache.Build(info, 100, env.deps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if a != b {
		t.Error("same entry must yield the same invoker")
	}

	other := callableOf("other", typeinfo.Signature{
		Return: typeinfo.Scalar(typeinfo.KindVoid),
	}, 0, nil)
	c, err := cache.Build(other, 200, env.deps())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if c == a {
		t.Error("distinct entries must yield distinct invokers")
	}
	if cache.Len() != 2 {
		t.Errorf("expected 2 cached invokers, got %d", cache.Len())
	}
}
