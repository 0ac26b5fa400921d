package wasm

import (
	"github.com/tetratelabs/wazero/api"
)

// SynthModuleBuilder builds a core module that re-exports host functions
// and, optionally, defines and exports one memory.
type SynthModuleBuilder struct {
	hostModuleName string
	funcs          []synthFunc
	memory         *synthMemory
}

type synthFunc struct {
	name        string
	paramTypes  []api.ValueType
	resultTypes []api.ValueType
}

type synthMemory struct {
	exportName string
	minPages   uint32
	maxPages   uint32
}

// NewSynthModuleBuilder creates a builder whose function imports come from
// hostModuleName.
func NewSynthModuleBuilder(hostModuleName string) *SynthModuleBuilder {
	return &SynthModuleBuilder{hostModuleName: hostModuleName}
}

// AddFunc adds a function to import and re-export under the same name.
func (b *SynthModuleBuilder) AddFunc(name string, params, results []api.ValueType) {
	b.funcs = append(b.funcs, synthFunc{
		name:        name,
		paramTypes:  params,
		resultTypes: results,
	})
}

// SetMemory defines a memory with the given page limits and exports it.
func (b *SynthModuleBuilder) SetMemory(exportName string, minPages, maxPages uint32) {
	b.memory = &synthMemory{exportName: exportName, minPages: minPages, maxPages: maxPages}
}

// HasMemory returns true if a memory is defined.
func (b *SynthModuleBuilder) HasMemory() bool {
	return b.memory != nil
}

// Build generates the module bytes, or nil for an empty builder.
func (b *SynthModuleBuilder) Build() []byte {
	hasFuncs := len(b.funcs) > 0
	if !hasFuncs && !b.HasMemory() {
		return nil
	}

	// Magic and version
	wasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if hasFuncs {
		wasm = appendSection(wasm, sectionType, b.buildTypeSection())
		wasm = appendSection(wasm, sectionImport, b.buildImportSection())
		wasm = appendSection(wasm, sectionFunction, b.buildFuncSection())
	}
	if b.HasMemory() {
		wasm = appendSection(wasm, sectionMemory, b.buildMemorySection())
	}
	wasm = appendSection(wasm, sectionExport, b.buildExportSection())
	if hasFuncs {
		wasm = appendSection(wasm, sectionCode, b.buildCodeSection())
	}
	return wasm
}

// One type per function; duplicates are legal and keep indices aligned.
func (b *SynthModuleBuilder) buildTypeSection() []byte {
	section := EncodeULEB128(uint32(len(b.funcs)))
	for _, f := range b.funcs {
		section = append(section, 0x60)
		section = append(section, EncodeULEB128(uint32(len(f.paramTypes)))...)
		for _, t := range f.paramTypes {
			section = append(section, ValTypeToWasm(t))
		}
		section = append(section, EncodeULEB128(uint32(len(f.resultTypes)))...)
		for _, t := range f.resultTypes {
			section = append(section, ValTypeToWasm(t))
		}
	}
	return section
}

func (b *SynthModuleBuilder) buildImportSection() []byte {
	section := EncodeULEB128(uint32(len(b.funcs)))
	for i, f := range b.funcs {
		section = appendName(section, b.hostModuleName)
		section = appendName(section, f.name)
		section = append(section, externFunc)
		section = append(section, EncodeULEB128(uint32(i))...)
	}
	return section
}

// Defined function i wraps imported function i and uses type i.
func (b *SynthModuleBuilder) buildFuncSection() []byte {
	section := EncodeULEB128(uint32(len(b.funcs)))
	for i := range b.funcs {
		section = append(section, EncodeULEB128(uint32(i))...)
	}
	return section
}

func (b *SynthModuleBuilder) buildMemorySection() []byte {
	section := []byte{0x01, 0x01} // one memory, has max
	section = append(section, EncodeULEB128(b.memory.minPages)...)
	return append(section, EncodeULEB128(b.memory.maxPages)...)
}

func (b *SynthModuleBuilder) buildExportSection() []byte {
	numExports := len(b.funcs)
	if b.HasMemory() {
		numExports++
	}
	section := EncodeULEB128(uint32(numExports))

	if b.HasMemory() {
		section = appendName(section, b.memory.exportName)
		section = append(section, externMemory, 0x00)
	}

	// Defined functions follow the imports in the function index space.
	numImports := len(b.funcs)
	for i, f := range b.funcs {
		section = appendName(section, f.name)
		section = append(section, externFunc)
		section = append(section, EncodeULEB128(uint32(numImports+i))...)
	}
	return section
}

func (b *SynthModuleBuilder) buildCodeSection() []byte {
	section := EncodeULEB128(uint32(len(b.funcs)))
	for i, f := range b.funcs {
		body := buildFuncBody(i, f)
		section = append(section, EncodeULEB128(uint32(len(body)))...)
		section = append(section, body...)
	}
	return section
}

// buildFuncBody forwards every parameter to the imported function.
func buildFuncBody(importIdx int, f synthFunc) []byte {
	body := []byte{0x00} // no locals
	for i := range f.paramTypes {
		body = append(body, 0x20) // local.get
		body = append(body, EncodeULEB128(uint32(i))...)
	}
	body = append(body, 0x10) // call
	body = append(body, EncodeULEB128(uint32(importIdx))...)
	return append(body, 0x0b)
}
