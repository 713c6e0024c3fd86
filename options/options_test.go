package options

import (
	"testing"
	"time"
)

var (
	testBool     = NewBoolOption("test.bool", true)
	testInt      = NewIntOption("test.int", 7)
	testDuration = NewTimeDurationOption("test.duration", time.Second)
	testUint32   = NewUint32Option("test.uint32", 1024)
	testString   = NewStringOption("test.string", "binary")
)

func TestValueFromDefaults(t *testing.T) {
	if !testBool.ValueFrom() {
		t.Errorf("bool default not used")
	}
	if v := testInt.ValueFrom(nil); v != 7 {
		t.Errorf("int default: got %d", v)
	}
	if v := testDuration.ValueFrom(OptionValues{}); v != time.Second {
		t.Errorf("duration default: got %s", v)
	}
	if v := testUint32.ValueFrom(); v != 1024 {
		t.Errorf("uint32 default: got %d", v)
	}
	if v := testString.ValueFrom(); v != "binary" {
		t.Errorf("string default: got %s", v)
	}
}

func TestValueFromPrecedence(t *testing.T) {
	first := OptionValues{testInt: 1}
	second := OptionValues{testInt: 2, testBool: false}

	if v := testInt.ValueFrom(first, second); v != 1 {
		t.Errorf("expected first set to win, got %d", v)
	}
	if testBool.ValueFrom(first, second) {
		t.Errorf("expected fallback to second set")
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		ovs := OptionValues{testInt: 3, testDuration: time.Millisecond, testString: "x"}
		if err := ovs.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
	t.Run("wrong type", func(t *testing.T) {
		ovs := OptionValues{testInt: "3"}
		if err := ovs.Validate(); err != ErrInvalidOptionValue {
			t.Errorf("expected ErrInvalidOptionValue, got %v", err)
		}
	})
	t.Run("negative duration", func(t *testing.T) {
		ovs := OptionValues{testDuration: -time.Second}
		if err := ovs.Validate(); err != ErrInvalidOptionValue {
			t.Errorf("expected ErrInvalidOptionValue, got %v", err)
		}
	})
}

func TestWithCopies(t *testing.T) {
	base := OptionValues{testInt: 1}
	derived := base.With(testInt, 5)
	if testInt.ValueFrom(base) != 1 {
		t.Errorf("With mutated the receiver")
	}
	if testInt.ValueFrom(derived) != 5 {
		t.Errorf("With did not set the value")
	}
}
