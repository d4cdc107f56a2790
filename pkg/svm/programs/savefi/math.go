package savefi

import "math/bits"

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return lo, nil
}

// percentOf returns floor(amount*rate/100).
func percentOf(amount uint64, rate uint8) (uint64, error) {
	product, err := checkedMul(amount, uint64(rate))
	if err != nil {
		return 0, err
	}
	return product / 100, nil
}

// addSeconds returns t+d for non-negative d.
func addSeconds(t, d int64) (int64, error) {
	if d < 0 || t > (1<<63-1)-d {
		return 0, ErrArithmeticOverflow
	}
	return t + d, nil
}

// SplitTrade returns the platform fee and the saved portion of a trade:
// fee = floor(amount*feeRate/100), saved = floor((amount-fee)*saveRate/100).
func SplitTrade(amount uint64, feeRate, saveRate uint8) (fee, saved uint64, err error) {
	fee, err = percentOf(amount, feeRate)
	if err != nil {
		return 0, 0, err
	}
	net, err := checkedSub(amount, fee)
	if err != nil {
		return 0, 0, err
	}
	saved, err = percentOf(net, saveRate)
	if err != nil {
		return 0, 0, err
	}
	return fee, saved, nil
}
