package s7

import "s7link/s7frame"

// DataSelector picks a bit or a byte range within whichever Area it is
// paired with. Construct one with Bit or Byte.
type DataSelector struct {
	bit     bool
	byteAdr uint16
	bitAdr  byte
	length  uint16 // byte count for Byte selectors, ignored for Bit
}

// Bit selects a single bit at byteAddr.bitAddr.
func Bit(byteAddr uint16, bitAddr byte) DataSelector {
	return DataSelector{bit: true, byteAdr: byteAddr, bitAdr: bitAddr}
}

// Byte selects length contiguous bytes starting at byteAddr.
func Byte(byteAddr uint16, length uint16) DataSelector {
	return DataSelector{byteAdr: byteAddr, length: length}
}

func (s DataSelector) toItemFields() (ts s7frame.TransportSize, length uint16, addr s7frame.Address, err error) {
	if s.bit {
		if s.bitAdr > 7 {
			return 0, 0, s7frame.Address{}, &InvalidBitAddrError{Value: int(s.bitAdr)}
		}
		return s7frame.TransportSizeBit, 1, s7frame.Address{ByteAddr: s.byteAdr, BitAddr: s.bitAdr}, nil
	}
	return s7frame.TransportSizeByte, s.length, s7frame.Address{ByteAddr: s.byteAdr}, nil
}

// Area is the sum type of client-facing memory area selections. Each
// variant projects onto an s7frame.Area/DbNumber/TransportSize triple.
type Area interface {
	toItemRequest() (s7frame.ItemRequest, error)
}

// ProcessInput selects a range of the process image input table (I).
type ProcessInput struct{ Selector DataSelector }

func (a ProcessInput) toItemRequest() (s7frame.ItemRequest, error) {
	ts, length, addr, err := a.Selector.toItemFields()
	if err != nil {
		return s7frame.ItemRequest{}, err
	}
	return s7frame.NewItemRequest(s7frame.AreaProcessInput, s7frame.DbNumberNotIn, ts, length, addr), nil
}

// ProcessOutput selects a range of the process image output table (Q).
type ProcessOutput struct{ Selector DataSelector }

func (a ProcessOutput) toItemRequest() (s7frame.ItemRequest, error) {
	ts, length, addr, err := a.Selector.toItemFields()
	if err != nil {
		return s7frame.ItemRequest{}, err
	}
	return s7frame.NewItemRequest(s7frame.AreaProcessOutput, s7frame.DbNumberNotIn, ts, length, addr), nil
}

// Merker selects a range of the bit-memory area (M).
type Merker struct{ Selector DataSelector }

func (a Merker) toItemRequest() (s7frame.ItemRequest, error) {
	ts, length, addr, err := a.Selector.toItemFields()
	if err != nil {
		return s7frame.ItemRequest{}, err
	}
	return s7frame.NewItemRequest(s7frame.AreaMerker, s7frame.DbNumberNotIn, ts, length, addr), nil
}

// V selects a range of DB1, the legacy S7-200 "V memory" alias for a fixed
// data block number.
type V struct{ Selector DataSelector }

func (a V) toItemRequest() (s7frame.ItemRequest, error) {
	ts, length, addr, err := a.Selector.toItemFields()
	if err != nil {
		return s7frame.ItemRequest{}, err
	}
	return s7frame.NewItemRequest(s7frame.AreaDataBlocks, s7frame.DbNumber(1), ts, length, addr), nil
}

// DataBausteine selects a range of an arbitrary data block (DBn).
type DataBausteine struct {
	DBNumber uint16
	Selector DataSelector
}

func (a DataBausteine) toItemRequest() (s7frame.ItemRequest, error) {
	ts, length, addr, err := a.Selector.toItemFields()
	if err != nil {
		return s7frame.ItemRequest{}, err
	}
	return s7frame.NewItemRequest(s7frame.AreaDataBlocks, s7frame.DbNumber(a.DBNumber), ts, length, addr), nil
}
