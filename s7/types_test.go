package s7

import "testing"

func TestParseDataType(t *testing.T) {
	tests := []struct {
		name     string
		want     DataType
		wantSize int
	}{
		{"BOOL", TypeBool, 1},
		{"bool", TypeBool, 1},
		{"BYTE", TypeByte, 1},
		{"USINT", TypeByte, 1},
		{"WORD", TypeWord, 2},
		{"UINT", TypeWord, 2},
		{"INT", TypeInt, 2},
		{"DWORD", TypeDWord, 4},
		{"UDINT", TypeDWord, 4},
		{"DINT", TypeDInt, 4},
		{"REAL", TypeReal, 4},
		{"LREAL", TypeLReal, 8},
		{"LINT", TypeLInt, 8},
		{"STRING", TypeString, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dt, ok := ParseDataType(tt.name)
			if !ok {
				t.Fatalf("ParseDataType(%q) not recognized", tt.name)
			}
			if dt != tt.want {
				t.Errorf("ParseDataType(%q) = %v, want %v", tt.name, dt, tt.want)
			}
			if dt.Size() != tt.wantSize {
				t.Errorf("%v.Size() = %d, want %d", dt, dt.Size(), tt.wantSize)
			}
		})
	}

	if _, ok := ParseDataType("FLOAT"); ok {
		t.Error("ParseDataType(FLOAT) should not be recognized")
	}
}

func TestDataTypeStringRoundTrip(t *testing.T) {
	for name, dt := range typeNames {
		switch name {
		case "USINT", "UINT", "UDINT":
			continue // aliases render as their canonical name
		}
		if dt.String() != name {
			t.Errorf("%v.String() = %q, want %q", uint16(dt), dt.String(), name)
		}
	}
	if DataType(0xFFFF).String() != "UNKNOWN" {
		t.Errorf("unknown code String() = %q, want UNKNOWN", DataType(0xFFFF).String())
	}
}
