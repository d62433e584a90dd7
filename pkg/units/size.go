package units

import "fmt"

const (
	KB = 1000
	MB = 1000 * KB
	GB = 1000 * MB

	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

var (
	decimalAbbrs = []string{"B", "kB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}
	binaryAbbrs  = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB", "ZiB", "YiB"}
)

func getSizeAndUnit(size float64, base float64, abbrs []string) (float64, string) {
	i := 0
	for size >= base && i < len(abbrs)-1 {
		size = size / base
		i++
	}
	return size, abbrs[i]
}

// HumanSize formats a byte count with decimal units, e.g. "44.2MB".
func HumanSize(size float64) string {
	return HumanSizeWithPrecision(size, 3)
}

func HumanSizeWithPrecision(size float64, precision int) string {
	size, unit := getSizeAndUnit(size, 1000.0, decimalAbbrs)
	return fmt.Sprintf("%.*g%s", precision, size, unit)
}

// BytesSize formats a byte count with binary units, e.g. "42.1MiB".
func BytesSize(size float64) string {
	size, unit := getSizeAndUnit(size, 1024.0, binaryAbbrs)
	return fmt.Sprintf("%.*g%s", 4, size, unit)
}
