package stackmap

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
)

// Encode writes s in the layout Parse reads. Version 2 and 3 sections carry
// the per-function record count; version 1 drops it.
func Encode(s *StackMaps) ([]byte, error) {
	if s.Version < 1 || s.Version > 3 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}
	numFunctions, err := safecast.Conv[uint32](len(s.Functions))
	if err != nil {
		return nil, fmt.Errorf("function count: %w", err)
	}
	numConstants, err := safecast.Conv[uint32](len(s.Constants))
	if err != nil {
		return nil, fmt.Errorf("constant count: %w", err)
	}
	numRecords, err := safecast.Conv[uint32](len(s.Records))
	if err != nil {
		return nil, fmt.Errorf("record count: %w", err)
	}

	le := binary.LittleEndian
	buf := make([]byte, 0, 16+len(s.Records)*32)
	buf = append(buf, s.Version, 0, 0, 0)
	buf = le.AppendUint32(buf, numFunctions)
	buf = le.AppendUint32(buf, numConstants)
	buf = le.AppendUint32(buf, numRecords)

	for _, f := range s.Functions {
		buf = le.AppendUint64(buf, f.Address)
		buf = le.AppendUint64(buf, f.StackSize)
		if s.Version >= 2 {
			buf = le.AppendUint64(buf, f.RecordCount)
		}
	}
	for _, c := range s.Constants {
		buf = le.AppendUint64(buf, c)
	}

	for i := range s.Records {
		rec := &s.Records[i]
		numLocations, err := safecast.Conv[uint16](len(rec.Locations))
		if err != nil {
			return nil, fmt.Errorf("record %d locations: %w", i, err)
		}
		numLiveOuts, err := safecast.Conv[uint16](len(rec.LiveOuts))
		if err != nil {
			return nil, fmt.Errorf("record %d live-outs: %w", i, err)
		}
		buf = le.AppendUint64(buf, uint64(rec.ID))
		buf = le.AppendUint32(buf, rec.InstructionOffset)
		buf = le.AppendUint16(buf, rec.Flags)
		buf = le.AppendUint16(buf, numLocations)
		for j, loc := range rec.Locations {
			buf = append(buf, uint8(loc.Kind))
			if s.Version >= 3 {
				buf = append(buf, 0)
				buf = le.AppendUint16(buf, loc.Size)
				buf = le.AppendUint16(buf, loc.Register)
				buf = le.AppendUint16(buf, 0)
			} else {
				size, err := safecast.Conv[uint8](loc.Size)
				if err != nil {
					return nil, fmt.Errorf("record %d location %d size: %w", i, j, err)
				}
				buf = append(buf, size)
				buf = le.AppendUint16(buf, loc.Register)
			}
			buf = le.AppendUint32(buf, uint32(loc.Offset)) //nolint:gosec // two's complement field
		}
		if s.Version >= 3 {
			buf = pad8(buf)
		}
		buf = le.AppendUint16(buf, 0)
		buf = le.AppendUint16(buf, numLiveOuts)
		for _, lo := range rec.LiveOuts {
			buf = le.AppendUint16(buf, lo.Register)
			buf = append(buf, 0, lo.Size)
		}
		buf = pad8(buf)
	}
	return buf, nil
}

func pad8(buf []byte) []byte {
	for len(buf)%8 != 0 {
		buf = append(buf, 0)
	}
	return buf
}
