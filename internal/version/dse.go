package version

// dseToCassandra maps DSE releases to the Cassandra release they ship. It is not
// comprehensive; CassandraForDSE falls back to a per-major estimate.
var dseToCassandra = map[string]string{
	"5.1":    "3.11",
	"5.0.4":  "3.0.10",
	"5.0.3":  "3.0.9",
	"5.0.2":  "3.0.8",
	"5.0.1":  "3.0.7",
	"4.8.11": "2.1.17",
	"4.8.10": "2.1.15",
	"4.8.9":  "2.1.15",
	"4.8.8":  "2.1.14",
	"4.8.7":  "2.1.14",
	"4.8.6":  "2.1.13",
	"4.8.5":  "2.1.13",
	"4.8.4":  "2.1.12",
	"4.8.3":  "2.1.11",
	"4.8.2":  "2.1.11",
	"4.8.1":  "2.1.11",
	"4.8":    "2.1.9",
	"4.7.9":  "2.1.15",
	"4.7.8":  "2.1.13",
	"4.7.7":  "2.1.12",
	"4.7.6":  "2.1.11",
	"4.7.5":  "2.1.11",
	"4.7.4":  "2.1.11",
	"4.7.3":  "2.1.8",
	"4.7.2":  "2.1.8",
	"4.7.1":  "2.1.5",
	"4.6.11": "2.0.16",
	"4.6.10": "2.0.16",
	"4.6.9":  "2.0.16",
	"4.6.8":  "2.0.16",
	"4.6.7":  "2.0.14",
	"4.6.6":  "2.0.14",
	"4.6.5":  "2.0.14",
	"4.6.4":  "2.0.14",
	"4.6.3":  "2.0.12",
	"4.6.2":  "2.0.12",
	"4.6.1":  "2.0.12",
	"4.6":    "2.0.11",
	"4.5.9":  "2.0.16",
	"4.5.8":  "2.0.14",
	"4.5.7":  "2.0.12",
	"4.5.6":  "2.0.12",
	"4.5.5":  "2.0.12",
	"4.5.4":  "2.0.11",
	"4.5.3":  "2.0.11",
	"4.5.2":  "2.0.10",
	"4.5.1":  "2.0.8",
	"4.5":    "2.0.8",
	"4.0":    "2.0",
	"3.2":    "1.2",
	"3.1":    "1.2",
}

// CassandraForDSE returns the Cassandra version bundled with a DSE release.
// Releases missing from the table are estimated:
//
//   - 3.x and older: 1.2
//   - 4.x: 2.1 from 4.7, 2.0 before
//   - 5.x: 3.0 for 5.0, 3.11 otherwise
//   - 6.x: 3.11 before 6.8, 4.0 from 6.8
//   - anything newer: 4.0
func CassandraForDSE(dse Number) Number {
	if c, ok := dseToCassandra[dse.String()]; ok {
		return MustParse(c)
	}
	switch major, minor := dse.Major(), dse.Minor(); {
	case major <= 3:
		return MustParse("1.2")
	case major == 4:
		if minor >= 7 {
			return MustParse("2.1")
		}
		return MustParse("2.0")
	case major == 5:
		if minor == 0 {
			return MustParse("3.0")
		}
		return MustParse("3.11")
	case major == 6:
		if minor < 8 {
			return MustParse("3.11")
		}
		return MustParse("4.0")
	default:
		return MustParse("4.0")
	}
}
