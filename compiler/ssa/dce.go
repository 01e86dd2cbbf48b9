package ssa

import "github.com/slowlang/fifth/compiler/set"

// DeadRegs removes pure instructions whose results are never used.
// It iterates until nothing changes and returns the number of removed instructions.
func DeadRegs(f *Func) (removed int) {
	used := set.MakeBits[Reg](f.NRegs)

	for {
		used.Reset()

		for _, b := range f.Blocks {
			for _, x := range b.Code {
				for _, a := range x.Args {
					if len(x.Dst) == 1 && x.Op == Phi && a == x.Dst[0] {
						continue // self reference keeps nothing alive
					}

					if a >= 0 {
						used.Set(a)
					}
				}
			}
		}

		n := 0

		for _, b := range f.Blocks {
			code := b.Code[:0]

			for _, x := range b.Code {
				if x.Pure() && !anyUsed(x.Dst, &used) {
					n++
					continue
				}

				code = append(code, x)
			}

			b.Code = code
		}

		if n == 0 {
			return removed
		}

		removed += n
	}
}

func anyUsed(rs []Reg, used *set.Bits[Reg]) bool {
	for _, r := range rs {
		if used.IsSet(r) {
			return true
		}
	}

	return false
}
