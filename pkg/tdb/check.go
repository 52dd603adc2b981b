package tdb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iamNilotpal/tdbgo/internal/format"
	"github.com/iamNilotpal/tdbgo/internal/freelist"
	"github.com/iamNilotpal/tdbgo/pkg/errors"
)

// CheckReport is Check's result: how many live and free records were
// walked and the first inconsistency found, if any.
type CheckReport struct {
	RecordsVisited     int
	FreeRecordsVisited int
	OK                 bool
	FirstProblem       string
}

func (r *CheckReport) fail(msg string) {
	r.OK = false
	if r.FirstProblem == "" {
		r.FirstProblem = msg
	}
}

// CheckFunc is invoked once per live record Check visits, the same
// per-record validation hook ccan/tdb2's tdb_check takes: return an
// error to flag that record as the database's problem, without aborting
// the walk of the rest of the file.
type CheckFunc func(key, data []byte) error

// Check walks the entire hash index verifying every record's magic byte
// and that its reported length stays within the file, then walks every
// free table verifying bucket placement and that no two free records sit
// adjacent to each other. It surfaces the first structural problem it
// finds rather than stopping there, so a caller can see how much of the
// database is still sound. cb, if non-nil, additionally runs
// application-level validation against each live record's key and data.
func (h *Handle) Check(cb CheckFunc) (CheckReport, error) {
	report := CheckReport{OK: true}
	size := h.file.Size()

	err := h.index.Traverse(func(hash, recOffset uint64) error {
		report.RecordsVisited++

		ok, end, err := h.checkRecordBounds(recOffset)
		if err != nil {
			report.fail("failed to read record header at offset")
			return nil
		}
		if !ok {
			report.fail("record has wrong magic tag")
			return nil
		}
		if end > size {
			report.fail("record extends past end of file")
			return nil
		}

		if cb != nil {
			_, key, data, err := h.readRecord(recOffset)
			if err != nil {
				report.fail("failed to read record body for callback")
				return nil
			}
			if err := cb(key, data); err != nil {
				report.fail(err.Error())
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	if err := h.checkFreeSpace(&report); err != nil {
		return report, err
	}

	if !report.OK {
		return report, errors.NewCorruptError(0, report.FirstProblem)
	}
	return report, nil
}

// checkRecordBounds reads just a record's header at offset and reports
// whether its magic tag is the live "used" tag for this handle's format
// version, plus the file offset just past its full on-disk footprint.
func (h *Handle) checkRecordBounds(offset uint64) (ok bool, end int64, err error) {
	if h.headerVersion() == 1 {
		hdrBuf := make([]byte, format.SizeV1)
		if err := h.file.ReadAt(hdrBuf, int64(offset)); err != nil {
			return false, 0, err
		}
		v1 := format.DecodeV1(hdrBuf)
		return v1.Magic == format.MagicV1Used, int64(offset) + format.SizeV1 + int64(v1.RecLen) + format.FooterSize, nil
	}

	hdrBuf := make([]byte, format.SizeV2)
	if err := h.file.ReadAt(hdrBuf, int64(offset)); err != nil {
		return false, 0, err
	}
	hdr := format.HeaderV2{MagicAndMeta: beU64(hdrBuf[0:8]), KeyAndDataLen: beU64(hdrBuf[8:16])}
	return hdr.Magic() == format.MagicUsed, int64(offset) + format.SizeV2 + int64(hdr.TotalLen()) + format.FooterSize, nil
}

// checkFreeSpace walks every free table, verifying each free record's
// bounds, that it's filed under the size-class bucket its own size maps
// to, and that no two free records sit immediately adjacent (they should
// have coalesced into one on the free path instead).
func (h *Handle) checkFreeSpace(report *CheckReport) error {
	var spans []freelist.FreeRecord
	if err := h.free.Walk(func(fr freelist.FreeRecord) error {
		spans = append(spans, fr)
		return nil
	}); err != nil {
		return err
	}
	report.FreeRecordsVisited = len(spans)

	size := uint64(h.file.Size())
	sort.Slice(spans, func(i, j int) bool { return spans[i].Offset < spans[j].Offset })

	for i, fr := range spans {
		if fr.Offset+fr.Size > size {
			report.fail("free record extends past end of file")
		}
		if freelist.BucketOf(fr.Size) != fr.Bucket {
			report.fail("free record filed under the wrong size-class bucket")
		}
		if i > 0 && spans[i-1].Offset+spans[i-1].Size == fr.Offset {
			report.fail("two free records sit adjacent without being coalesced")
		}
	}
	return nil
}

// Stats is the aggregate numeric view behind Summary's text report.
type Stats struct {
	RecordCount               int
	TotalDataBytes            uint64
	TotalKeyBytes             uint64
	SmallestKey, LargestKey   uint64
	SmallestData, LargestData uint64
	FreeBytes                 uint64
	FreeRecords               int
	FileSizeBytes             int64
	Seqnum                    uint64

	sizeBuckets map[int]sizeBucketStat
}

type sizeBucketStat struct {
	count int
	bytes uint64
}

// computeStats walks the live index and every free table once each to
// build the numbers Summary's text report is built from.
func (h *Handle) computeStats() (Stats, error) {
	s := Stats{FileSizeBytes: h.file.Size(), sizeBuckets: make(map[int]sizeBucketStat)}

	seq, err := h.Seqnum()
	if err != nil {
		return s, err
	}
	s.Seqnum = seq

	err = h.index.Traverse(func(hash, recOffset uint64) error {
		_, key, data, err := h.readRecord(recOffset)
		if err != nil {
			return err
		}
		kl, dl := uint64(len(key)), uint64(len(data))
		s.RecordCount++
		s.TotalKeyBytes += kl
		s.TotalDataBytes += dl
		if s.RecordCount == 1 || kl < s.SmallestKey {
			s.SmallestKey = kl
		}
		if kl > s.LargestKey {
			s.LargestKey = kl
		}
		if s.RecordCount == 1 || dl < s.SmallestData {
			s.SmallestData = dl
		}
		if dl > s.LargestData {
			s.LargestData = dl
		}

		b := freelist.BucketOf(kl + dl)
		stat := s.sizeBuckets[b]
		stat.count++
		stat.bytes += kl + dl
		s.sizeBuckets[b] = stat
		return nil
	})
	if err != nil {
		return s, err
	}

	err = h.free.Walk(func(fr freelist.FreeRecord) error {
		s.FreeRecords++
		s.FreeBytes += fr.Size
		return nil
	})
	return s, err
}

// SummaryFlags controls how much detail Summary's text report includes.
type SummaryFlags int

const (
	// SummaryBasic reports counts and byte totals only.
	SummaryBasic SummaryFlags = 0
	// SummaryHistograms additionally renders a record-size histogram.
	SummaryHistograms SummaryFlags = 1 << 0
)

// Summary renders a text report of the database's current content and
// space usage, the same shape ccan/tdb2's tdb_summary produces: headline
// counts always, a size-class histogram when flags includes
// SummaryHistograms.
func (h *Handle) Summary(flags SummaryFlags) (string, error) {
	s, err := h.computeStats()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Size of file/data: %d/%d\n", s.FileSizeBytes, s.TotalKeyBytes+s.TotalDataBytes)
	fmt.Fprintf(&b, "Number of records: %d\n", s.RecordCount)
	fmt.Fprintf(&b, "Smallest/average/largest keys: %d/%d/%d\n",
		s.SmallestKey, average(s.TotalKeyBytes, s.RecordCount), s.LargestKey)
	fmt.Fprintf(&b, "Smallest/average/largest data: %d/%d/%d\n",
		s.SmallestData, average(s.TotalDataBytes, s.RecordCount), s.LargestData)
	fmt.Fprintf(&b, "Number of free records: %d\n", s.FreeRecords)
	fmt.Fprintf(&b, "Free space: %d\n", s.FreeBytes)
	fmt.Fprintf(&b, "Sequence number: %d\n", s.Seqnum)

	if flags&SummaryHistograms != 0 {
		b.WriteString(sizeHistogram(s.sizeBuckets))
	}
	return b.String(), nil
}

func average(total uint64, count int) uint64 {
	if count == 0 {
		return 0
	}
	return total / uint64(count)
}

// sizeHistogram renders one bar per occupied size-class bucket, widest
// bucket scaled to histogramWidth stars, matching the "|....*...|" bar
// shape ccan/tdb2's own histogram report uses.
const histogramWidth = 40

func sizeHistogram(buckets map[int]sizeBucketStat) string {
	if len(buckets) == 0 {
		return ""
	}
	keys := make([]int, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	max := 0
	for _, k := range keys {
		if buckets[k].count > max {
			max = buckets[k].count
		}
	}

	var b strings.Builder
	b.WriteString("Record size histogram:\n")
	for _, k := range keys {
		stat := buckets[k]
		bars := 0
		if max > 0 {
			bars = stat.count * histogramWidth / max
		}
		fmt.Fprintf(&b, "%6d |%s%s| %d (%d bytes)\n",
			k, strings.Repeat("*", bars), strings.Repeat(" ", histogramWidth-bars), stat.count, stat.bytes)
	}
	return b.String()
}
