package stackmap

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
)

type reader struct {
	data []byte
	pos  int
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || n > len(r.data)-r.pos {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrTruncated, n, r.pos, len(r.data))
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// align8 skips padding up to the next multiple of eight. The padding must be present.
func (r *reader) align8() error {
	if pad := (8 - r.pos%8) % 8; pad != 0 {
		_, err := r.take(pad)
		return err
	}
	return nil
}

// Parse decodes a stack-map section. The section is delimited by the
// length of data. Parse never panics on malformed input.
func Parse(data []byte) (*StackMaps, error) {
	r := &reader{data: data}
	s := &StackMaps{}

	version, err := r.u8()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if version < 1 || version > 3 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	s.Version = version
	if _, err := r.take(3); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	numFunctions, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	numConstants, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	numRecords, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	// Reject counts the section cannot possibly hold before allocating.
	fnSize := 16
	if version >= 2 {
		fnSize = 24
	}
	if err := fits(r, uint64(numFunctions)*uint64(fnSize)+uint64(numConstants)*8+uint64(numRecords)*16); err != nil {
		return nil, fmt.Errorf("tables: %w", err)
	}

	s.Functions = make([]Function, numFunctions)
	for i := range s.Functions {
		f := &s.Functions[i]
		if f.Address, err = r.u64(); err != nil {
			return nil, fmt.Errorf("function %d: %w", i, err)
		}
		if f.StackSize, err = r.u64(); err != nil {
			return nil, fmt.Errorf("function %d: %w", i, err)
		}
		if version >= 2 {
			if f.RecordCount, err = r.u64(); err != nil {
				return nil, fmt.Errorf("function %d: %w", i, err)
			}
		}
	}

	s.Constants = make([]uint64, numConstants)
	for i := range s.Constants {
		if s.Constants[i], err = r.u64(); err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
	}

	s.Records = make([]Record, numRecords)
	for i := range s.Records {
		if err := r.record(version, &s.Records[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return s, nil
}

func fits(r *reader, n uint64) error {
	if n > uint64(len(r.data)-r.pos) {
		return fmt.Errorf("%w: %d bytes declared, %d left", ErrTruncated, n, len(r.data)-r.pos)
	}
	return nil
}

func (r *reader) record(version uint8, rec *Record) error {
	id, err := r.u64()
	if err != nil {
		return err
	}
	if rec.ID, err = safecast.Conv[uint32](id); err != nil {
		return fmt.Errorf("%w: patch point id %d: %w", ErrMalformed, id, err)
	}
	if rec.InstructionOffset, err = r.u32(); err != nil {
		return err
	}
	if rec.Flags, err = r.u16(); err != nil {
		return err
	}
	numLocations, err := r.u16()
	if err != nil {
		return err
	}
	rec.Locations = make([]Location, numLocations)
	for i := range rec.Locations {
		if err := r.location(version, &rec.Locations[i]); err != nil {
			return fmt.Errorf("location %d: %w", i, err)
		}
	}

	if version >= 3 {
		if err := r.align8(); err != nil {
			return err
		}
	}
	if _, err := r.u16(); err != nil {
		return err
	}
	numLiveOuts, err := r.u16()
	if err != nil {
		return err
	}
	rec.LiveOuts = make([]LiveOut, numLiveOuts)
	for i := range rec.LiveOuts {
		lo := &rec.LiveOuts[i]
		if lo.Register, err = r.u16(); err != nil {
			return fmt.Errorf("live-out %d: %w", i, err)
		}
		if _, err := r.u8(); err != nil {
			return fmt.Errorf("live-out %d: %w", i, err)
		}
		if lo.Size, err = r.u8(); err != nil {
			return fmt.Errorf("live-out %d: %w", i, err)
		}
	}
	return r.align8()
}

func (r *reader) location(version uint8, loc *Location) error {
	kind, err := r.u8()
	if err != nil {
		return err
	}
	if kind < uint8(Register) || kind > uint8(ConstantIndex) {
		return fmt.Errorf("%w: location kind %d", ErrMalformed, kind)
	}
	loc.Kind = LocationKind(kind)

	if version >= 3 {
		if _, err := r.u8(); err != nil {
			return err
		}
		if loc.Size, err = r.u16(); err != nil {
			return err
		}
		if loc.Register, err = r.u16(); err != nil {
			return err
		}
		if _, err := r.u16(); err != nil {
			return err
		}
	} else {
		size, err := r.u8()
		if err != nil {
			return err
		}
		loc.Size = uint16(size)
		if loc.Register, err = r.u16(); err != nil {
			return err
		}
	}

	off, err := r.u32()
	if err != nil {
		return err
	}
	loc.Offset = int32(off) //nolint:gosec // two's complement field
	return nil
}
