package advert

import "fmt"

// Fields renders the advertisement as a flat map for display and filtering.
// Byte sequences are uppercase hex; absent fields are omitted.
func (a Advertisement) Fields() map[string]any {
	fields := map[string]any{
		"_":              "advertisement",
		"type":           fmt.Sprintf("0x%02X", a.Type),
		"payload_length": int(a.PayloadLength),
	}
	if a.Status != nil {
		fields["status"] = fmt.Sprintf("0x%02X", a.Status.Raw)
		fields["battery_level"] = a.Status.BatteryLevel.String()
		fields["battery_level_raw"] = int(a.Status.BatteryLevel)
		fields["reserved_bits"] = int(a.Status.Reserved)
	}
	if a.KeyFragment != nil {
		fields["key_fragment"] = a.KeyFragment.String()
		fields["key_fragment_length"] = len(a.KeyFragment.Bytes)
		fields["key_fragment_truncated"] = a.KeyFragment.Truncated
	}
	if a.ReconstructedKey != nil {
		fields["reconstructed"] = true
		fields["reconstructed_public_key"] = a.ReconstructedKey.String()
		if a.Address != nil {
			fields["reconstructed_from_address"] = a.Address.String()
		}
	}
	if a.KeyHint != nil {
		fields["key_hint"] = int(*a.KeyHint)
	}
	if a.RotationCounter != nil {
		fields["rotation_counter"] = int(*a.RotationCounter)
	}
	if len(a.Notes) > 0 {
		notes := make([]string, 0, len(a.Notes))
		for _, n := range a.Notes {
			notes = append(notes, n.String())
		}
		fields["notes"] = notes
	}
	return fields
}
