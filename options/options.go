package options

import (
	"errors"
	"time"
)

type (
	// Option is an option item.
	Option interface {
		Name() string
		Default() interface{}
		Validate(val interface{}) error
	}

	// OptionValues is a set of option values.
	OptionValues map[Option]interface{}

	baseOption struct {
		name string
		def  interface{}
	}

	// BoolOption is option with bool value.
	BoolOption interface {
		Option
		Value(val interface{}) bool
		ValueFrom(ovses ...OptionValues) bool
	}

	boolOption struct {
		baseOption
	}

	// TimeDurationOption is option with time duration value.
	TimeDurationOption interface {
		Option
		Value(val interface{}) time.Duration
		ValueFrom(ovses ...OptionValues) time.Duration
	}

	timeDurationOption struct {
		baseOption
	}

	// IntOption is option with int value.
	IntOption interface {
		Option
		Value(val interface{}) int
		ValueFrom(ovses ...OptionValues) int
	}

	intOption struct {
		baseOption
	}

	// Uint32Option is option with uint32 value.
	Uint32Option interface {
		Option
		Value(val interface{}) uint32
		ValueFrom(ovses ...OptionValues) uint32
	}

	uint32Option struct {
		baseOption
	}

	// StringOption is option with string value.
	StringOption interface {
		Option
		Value(val interface{}) string
		ValueFrom(ovses ...OptionValues) string
	}

	stringOption struct {
		baseOption
	}
)

// errors
var (
	ErrInvalidOptionValue = errors.New("invalid option value")
)

// Validate checks every value against its option.
func (ovs OptionValues) Validate() error {
	for opt, val := range ovs {
		if err := opt.Validate(val); err != nil {
			return err
		}
	}
	return nil
}

// With returns a copy of ovs with opt set to val.
func (ovs OptionValues) With(opt Option, val interface{}) OptionValues {
	res := make(OptionValues, len(ovs)+1)
	for o, v := range ovs {
		res[o] = v
	}
	res[opt] = val
	return res
}

// lookup finds the first value of opt, earlier sets win.
func lookup(opt Option, ovses []OptionValues) interface{} {
	for _, ovs := range ovses {
		if val, ok := ovs[opt]; ok {
			return val
		}
	}
	return opt.Default()
}

func (o *baseOption) Name() string {
	return o.name
}

func (o *baseOption) Default() interface{} {
	return o.def
}

// NewBoolOption create a bool option
func NewBoolOption(name string, def bool) BoolOption {
	return &boolOption{baseOption{name, def}}
}

// Validate validate the option value
func (o *boolOption) Validate(val interface{}) error {
	if _, ok := val.(bool); !ok {
		return ErrInvalidOptionValue
	}
	return nil
}

// Value get option's value, must ensure option value is not empty
func (o *boolOption) Value(val interface{}) bool {
	return val.(bool)
}

// ValueFrom get option's value from option sets or default.
func (o *boolOption) ValueFrom(ovses ...OptionValues) bool {
	return o.Value(lookup(o, ovses))
}

// NewTimeDurationOption create a time duration option
func NewTimeDurationOption(name string, def time.Duration) TimeDurationOption {
	return &timeDurationOption{baseOption{name, def}}
}

// Validate validate the option value
func (o *timeDurationOption) Validate(val interface{}) error {
	if d, ok := val.(time.Duration); !ok || d < 0 {
		return ErrInvalidOptionValue
	}
	return nil
}

// Value get option's value, must ensure option value is not empty
func (o *timeDurationOption) Value(val interface{}) time.Duration {
	return val.(time.Duration)
}

// ValueFrom get option's value from option sets or default.
func (o *timeDurationOption) ValueFrom(ovses ...OptionValues) time.Duration {
	return o.Value(lookup(o, ovses))
}

// NewIntOption create an int option
func NewIntOption(name string, def int) IntOption {
	return &intOption{baseOption{name, def}}
}

// Validate validate the option value
func (o *intOption) Validate(val interface{}) error {
	if _, ok := val.(int); !ok {
		return ErrInvalidOptionValue
	}
	return nil
}

// Value get option's value, must ensure option value is not empty
func (o *intOption) Value(val interface{}) int {
	return val.(int)
}

// ValueFrom get option's value from option sets or default.
func (o *intOption) ValueFrom(ovses ...OptionValues) int {
	return o.Value(lookup(o, ovses))
}

// NewUint32Option create an uint32 option
func NewUint32Option(name string, def uint32) Uint32Option {
	return &uint32Option{baseOption{name, def}}
}

// Validate validate the option value
func (o *uint32Option) Validate(val interface{}) error {
	if _, ok := val.(uint32); !ok {
		return ErrInvalidOptionValue
	}
	return nil
}

// Value get option's value, must ensure option value is not empty
func (o *uint32Option) Value(val interface{}) uint32 {
	return val.(uint32)
}

// ValueFrom get option's value from option sets or default.
func (o *uint32Option) ValueFrom(ovses ...OptionValues) uint32 {
	return o.Value(lookup(o, ovses))
}

// NewStringOption create a string option
func NewStringOption(name string, def string) StringOption {
	return &stringOption{baseOption{name, def}}
}

// Validate validate the option value
func (o *stringOption) Validate(val interface{}) error {
	if _, ok := val.(string); !ok {
		return ErrInvalidOptionValue
	}
	return nil
}

// Value get option's value, must ensure option value is not empty
func (o *stringOption) Value(val interface{}) string {
	return val.(string)
}

// ValueFrom get option's value from option sets or default.
func (o *stringOption) ValueFrom(ovses ...OptionValues) string {
	return o.Value(lookup(o, ovses))
}
