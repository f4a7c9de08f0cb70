package audio

// Buffer is one callback's worth of interleaved device-native samples
type Buffer interface {
	Format() SampleFormat
	// Len returns the number of samples (frames * channels)
	Len() int
}

type Int16Buffer []int16

func (b Int16Buffer) Format() SampleFormat { return FormatInt16 }
func (b Int16Buffer) Len() int             { return len(b) }

type Int32Buffer []int32

func (b Int32Buffer) Format() SampleFormat { return FormatInt32 }
func (b Int32Buffer) Len() int             { return len(b) }

type Float32Buffer []float32

func (b Float32Buffer) Format() SampleFormat { return FormatFloat32 }
func (b Float32Buffer) Len() int             { return len(b) }

// NewBuffer allocates a zeroed buffer of n samples in format f
func NewBuffer(f SampleFormat, n int) Buffer {
	switch f {
	case FormatInt32:
		return make(Int32Buffer, n)
	case FormatFloat32:
		return make(Float32Buffer, n)
	default:
		return make(Int16Buffer, n)
	}
}
