package engine

// Minimal core wasm encoder for building test modules without a toolchain.

const (
	valI32 byte = 0x7f
	valI64 byte = 0x7e

	opEnd       byte = 0x0b
	opCall      byte = 0x10
	opLocalGet  byte = 0x20
	opGlobalGet byte = 0x23
	opGlobalSet byte = 0x24
	opI32Load   byte = 0x28
	opI32Load8U byte = 0x2d
	opI32Store  byte = 0x36
	opI32Const  byte = 0x41
	opI32Add    byte = 0x6a
	opI64Add    byte = 0x7c
	opTrap      byte = 0x00

	exportFunc   byte = 0x00
	exportMemory byte = 0x02
	exportGlobal byte = 0x03
)

type funcType struct {
	params  []byte
	results []byte
}

type testFunc struct {
	name string
	typ  int
	body []byte
}

type testGlobal struct {
	name    string
	init    int32
	mutable bool
}

// testModule describes a module with one env import, one memory and i32
// globals. Imported functions take the lowest indices.
type testModule struct {
	types   []funcType
	imports []testImport
	funcs   []testFunc
	globals []testGlobal
	data    []byte
	dataAt  int32
}

type testImport struct {
	module string
	name   string
	typ    int
}

func (m *testModule) importFunc(module, name string, typ int) {
	m.imports = append(m.imports, testImport{module: module, name: name, typ: typ})
}

func (m *testModule) encode() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	var sec []byte
	sec = appendU32(sec, uint32(len(m.types)))
	for _, t := range m.types {
		sec = append(sec, 0x60)
		sec = appendBytes(sec, t.params)
		sec = appendBytes(sec, t.results)
	}
	out = appendSection(out, 1, sec)

	sec = appendU32(nil, uint32(len(m.imports)))
	for _, imp := range m.imports {
		sec = appendName(sec, imp.module)
		sec = appendName(sec, imp.name)
		sec = append(sec, 0x00)
		sec = appendU32(sec, uint32(imp.typ))
	}
	out = appendSection(out, 2, sec)

	sec = appendU32(nil, uint32(len(m.funcs)))
	for _, f := range m.funcs {
		sec = appendU32(sec, uint32(f.typ))
	}
	out = appendSection(out, 3, sec)

	// one page, no maximum
	out = appendSection(out, 5, []byte{0x01, 0x00, 0x01})

	sec = appendU32(nil, uint32(len(m.globals)))
	for _, g := range m.globals {
		sec = append(sec, valI32)
		if g.mutable {
			sec = append(sec, 0x01)
		} else {
			sec = append(sec, 0x00)
		}
		sec = append(sec, opI32Const)
		sec = appendS32(sec, g.init)
		sec = append(sec, opEnd)
	}
	out = appendSection(out, 6, sec)

	count := 1 + len(m.funcs) + len(m.globals)
	sec = appendU32(nil, uint32(count))
	sec = appendName(sec, "memory")
	sec = append(sec, exportMemory, 0x00)
	for i, f := range m.funcs {
		sec = appendName(sec, f.name)
		sec = append(sec, exportFunc)
		sec = appendU32(sec, uint32(len(m.imports)+i))
	}
	for i, g := range m.globals {
		sec = appendName(sec, g.name)
		sec = append(sec, exportGlobal)
		sec = appendU32(sec, uint32(i))
	}
	out = appendSection(out, 7, sec)

	sec = appendU32(nil, uint32(len(m.funcs)))
	for _, f := range m.funcs {
		body := append([]byte{0x00}, f.body...)
		body = append(body, opEnd)
		sec = appendBytes(sec, body)
	}
	out = appendSection(out, 10, sec)

	if len(m.data) > 0 {
		sec = appendU32(nil, 1)
		sec = append(sec, 0x00, opI32Const)
		sec = appendS32(sec, m.dataAt)
		sec = append(sec, opEnd)
		sec = appendBytes(sec, m.data)
		out = appendSection(out, 11, sec)
	}
	return out
}

func appendSection(out []byte, id byte, data []byte) []byte {
	out = append(out, id)
	return appendBytes(out, data)
}

func appendBytes(out, b []byte) []byte {
	out = appendU32(out, uint32(len(b)))
	return append(out, b...)
}

func appendName(out []byte, s string) []byte {
	return appendBytes(out, []byte(s))
}

func appendU32(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func appendS32(out []byte, v int32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func i32Const(v int32) []byte {
	return appendS32([]byte{opI32Const}, v)
}

func ops(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

const (
	heapBase = 1024
	objSize  = 16
	helloAt  = 16
)

// counterWasm builds the module behind counterManifest. Global 0 is a bump
// allocator shared by alloc and cabi_realloc; global 1 is the exported score.
func counterWasm() []byte {
	m := &testModule{
		types: []funcType{
			{params: []byte{valI32, valI32}},
			{results: []byte{valI32}},
			{params: []byte{valI32, valI32}, results: []byte{valI32}},
			{params: []byte{valI32}, results: []byte{valI32}},
			{},
			{params: []byte{valI32, valI32, valI32, valI32}, results: []byte{valI32}},
			{params: []byte{valI64, valI64}, results: []byte{valI64}},
		},
		globals: []testGlobal{
			{name: "heap", init: heapBase, mutable: true},
			{name: "score", init: 7, mutable: true},
		},
		data:   []byte("hello"),
		dataAt: helloAt,
	}
	m.importFunc("env", "script_log", 0)

	bump := func(size []byte) []byte {
		return ops(
			[]byte{opGlobalGet, 0, opGlobalGet, 0},
			size,
			[]byte{opI32Add, opGlobalSet, 0},
		)
	}
	m.funcs = []testFunc{
		{name: "alloc", typ: 1, body: bump(i32Const(objSize))},
		{name: "add", typ: 2, body: []byte{opLocalGet, 0, opLocalGet, 1, opI32Add}},
		{name: "set_value", typ: 0, body: []byte{opLocalGet, 0, opLocalGet, 1, opI32Store, 2, 0}},
		{name: "get_value", typ: 3, body: []byte{opLocalGet, 0, opI32Load, 2, 0}},
		{name: "fail", typ: 4, body: []byte{opTrap}},
		{name: "hello", typ: 4, body: ops(i32Const(helloAt), i32Const(5), []byte{opCall, 0})},
		{name: "cabi_realloc", typ: 5, body: bump([]byte{opLocalGet, 3})},
		{name: "strlen", typ: 2, body: []byte{opLocalGet, 1}},
		{name: "first", typ: 2, body: []byte{opLocalGet, 0, opI32Load8U, 0, 0}},
		{name: "wide", typ: 6, body: []byte{opLocalGet, 0, opLocalGet, 1, opI64Add}},
	}
	return m.encode()
}

const counterManifest = `
assembly: Counters
classes:
  - namespace: Game
    name: Counter
    alloc: alloc
    methods:
      - name: Add
        export: add
        static: true
        params:
          - {name: a, type: s32}
          - {name: b, type: s32}
        result: s32
      - name: Fail
        export: fail
        static: true
      - name: Hello
        export: hello
        static: true
      - name: Length
        export: strlen
        static: true
        params:
          - {name: s, type: string}
        result: s32
      - name: First
        export: first
        static: true
        params:
          - {name: s, type: string}
        result: s32
      - name: Wide
        export: wide
        static: true
        params:
          - {type: s64}
          - {type: s64}
        result: s64
    properties:
      - name: Value
        type: s32
        get: get_value
        set: set_value
    fields:
      - name: Score
        type: s32
        global: score
`
