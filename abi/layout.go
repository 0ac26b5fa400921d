package abi

// Ptr is an address in the embedded heap. Values, types and raw buffers are
// all referenced by Ptr. The zero Ptr is null.
type Ptr uint32

// Null is the null address.
const Null Ptr = 0

// IsNull reports whether p is the null address.
func (p Ptr) IsNull() bool { return p == Null }

const (
	// PageSize is the size of one linear memory page.
	PageSize = 65536

	// SymbolCellBase is the address of the first data-symbol cell.
	SymbolCellBase = 64

	// HeapBase is where dynamic allocation starts. The first page is reserved
	// for null and the data-symbol cells.
	HeapBase = PageSize

	// HeaderSize precedes every object body: u32 type pointer, u32 GC bits.
	HeaderSize = 8

	// Header fields, relative to the header start.
	HeaderTypeOffset = 0
	HeaderBitsOffset = 4
)

// Header returns the address of the header that precedes the body at p.
func Header(p Ptr) Ptr { return p - HeaderSize }

// Array body layout.
const (
	ArrayDataOffset   = 0
	ArrayLengthOffset = 4
	ArrayRankOffset   = 8
	ArrayFlagsOffset  = 12
	ArrayDimsOffset   = 16
	ArrayBodySize     = 32

	// MaxArrayRank is the highest rank an array header can describe.
	MaxArrayRank = 3

	// ArrayFlagOwned marks data the collector frees with the array.
	ArrayFlagOwned = 1 << 0
	// ArrayFlagExternal marks data that was not allocated for the array.
	ArrayFlagExternal = 1 << 1
)

// String and Symbol body layout: length, then bytes and a trailing NUL.
const (
	StringLengthOffset = 0
	StringDataOffset   = 4
)

// DataType body layout.
const (
	TypeNameOffset     = 0
	TypeFullNameOffset = 4
	TypeElemOffset     = 8
	TypeRankOffset     = 12
	TypeBodySize       = 16
)

// ElemSize is the element size of every numeric array.
const ElemSize = 8

// SymbolCell returns the address of the i-th data-symbol cell.
func SymbolCell(i int) Ptr {
	return Ptr(SymbolCellBase + 4*i)
}
