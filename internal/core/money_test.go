package core

import "testing"

func TestParseDecimalToMilliunits(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"30", 30000, true},
		{"1.0", 1000, true},
		{"1.23", 1230, true},
		{"1,23", 1230, true},
		{"0.001", 1, true},
		{"0", 0, true},
		{"1.2345", 1235, true}, // half-up rounding
		{" 2.50 ", 2500, true},
		{"-1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToMilliunits(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParseBalanceToMilliunits(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"100", 100000, true},
		{"-10", -10000, true},
		{"-0.5", -500, true},
		{" -2,50 ", -2500, true},
		{"0", 0, true},
		{"-", 0, false},
		{"--1", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseBalanceToMilliunits(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestUnitsToMilliunits(t *testing.T) {
	cases := []struct {
		in  float64
		out int64
	}{
		{30, 30000},
		{0.5, 500},
		{12.345, 12345},
		{0, 0},
	}
	for _, tc := range cases {
		if got := UnitsToMilliunits(tc.in); got != tc.out {
			t.Errorf("UnitsToMilliunits(%v) = %d, want %d", tc.in, got, tc.out)
		}
	}
}

func TestMoneyDecimalString(t *testing.T) {
	if got := (Money{Milliunits: 30000}).DecimalString(); got != "30.000" {
		t.Errorf("DecimalString() = %q, want %q", got, "30.000")
	}
	if got := (Money{Milliunits: -1500}).DecimalString(); got != "-1.500" {
		t.Errorf("DecimalString() = %q, want %q", got, "-1.500")
	}
}
