package kbucket

import "github.com/holiman/uint256"

// XORDistance folds the byte-wise XOR of two ids into a single int by
// repeatedly doing acc = acc*256 + (a[i] ^ b[i]). When the ids differ in
// length the missing bytes contribute 0xFF, maximizing their distance
// (note: determine() treats missing bytes as 0 instead; the two padding
// conventions disagree and are both kept for compatibility).
//
// The accumulator wraps, so the ordering is only consistent with XOR-metric
// closeness while the shared id prefix fits in an int (about 7 bytes). For
// full-width 160-bit ids use XORDistance256 or CompareDistance instead.
func XORDistance(fid, sid []byte) int {
	min, max := len(fid), len(sid)
	if min > max {
		min, max = max, min
	}

	dist := 0
	i := 0

	for i < min {
		dist = dist*256 + (int(fid[i]) ^ int(sid[i]))
		i++
	}

	for i < max {
		dist = dist*256 + 255
		i++
	}

	return dist
}

// XORDistance256 is the same fold without the wrap: the XOR bytes (0xFF
// padded) are interpreted as a big-endian 256-bit integer, which covers
// production 160-bit ids exactly. Ids longer than 32 bytes are truncated to
// their low 32 XOR bytes.
func XORDistance256(fid, sid []byte) *uint256.Int {
	n := len(fid)
	if len(sid) > n {
		n = len(sid)
	}

	buf := make([]byte, n)
	for i := range buf {
		if i < len(fid) && i < len(sid) {
			buf[i] = fid[i] ^ sid[i]
		} else {
			buf[i] = 0xFF
		}
	}

	return new(uint256.Int).SetBytes(buf)
}

// CompareDistance reports whether fid is closer to target than sid under the
// full-width metric: -1 if closer, 0 if equidistant, 1 if farther.
func CompareDistance(fid, sid, target []byte) int {
	return XORDistance256(fid, target).Cmp(XORDistance256(sid, target))
}
