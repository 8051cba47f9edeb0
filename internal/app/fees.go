/**
 * @description
 * Platform fee math. The marketplace takes a fixed percentage of each gross
 * charge amount, computed in integer minor-currency units.
 */
package app

// platformFeeBps is the marketplace cut in basis points (10%).
const platformFeeBps = 1000

// PlatformFee returns the platform's cut of a gross amount in minor units,
// rounding half up. Equivalent to round(amount * 0.10) for the default rate.
// For any non-negative amount the result stays within [0, amount]. The
// quotient/remainder split keeps the intermediate products inside int64 for
// the full amount range.
func PlatformFee(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	quotient, remainder := amount/10000, amount%10000
	return quotient*platformFeeBps + (remainder*platformFeeBps+5000)/10000
}
