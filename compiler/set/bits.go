package set

type (
	Key interface {
		~int | ~int64
	}

	// Bits is a Bitmap keyed by an int-like id type, such as a register.
	Bits[K Key] struct {
		m Bitmap
	}
)

func MakeBits[K Key](n int) Bits[K] {
	return Bits[K]{m: MakeBitmap(n)}
}

func (s *Bits[K]) Set(k K) { s.m.Set(int(k)) }

// Add sets k and reports whether it was not set before.
func (s *Bits[K]) Add(k K) bool { return s.m.Add(int(k)) }

func (s *Bits[K]) IsSet(k K) bool { return s.m.IsSet(int(k)) }

func (s *Bits[K]) Reset() { s.m.Reset() }
