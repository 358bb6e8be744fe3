// SPDX-License-Identifier: AGPL-3.0-or-later
// accessbroker - subscription entitlement lifecycle engine
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package xray

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// accessLineRE matches Xray's VLESS/Reality access.log line shape:
//
//	2026/02/15 22:03:06.330641 from 62.76.93.29:1155 accepted tcp:1.1.1.1:443 email: tg:896907140
//
// It does not anchor to end-of-line since some builds append extra fields
// after the email.
var accessLineRE = regexp.MustCompile(
	`^(\d{4}/\d{2}/\d{2}\s+\d{2}:\d{2}:\d{2}\.\d+).*?\bfrom\s+(\d{1,3}(?:\.\d{1,3}){3}):\d+\s+accepted\b.*?\bemail:\s*(\S+)`,
)

const accessLineTimeLayout = "2006/01/02 15:04:05.000000"

// AccessEvent is one parsed "accepted" line from the Xray access log.
type AccessEvent struct {
	Time time.Time
	IP   string
	TGID int64
}

// ParseAccessLine extracts an AccessEvent from a single access.log line, or
// reports ok=false for lines that don't match the expected shape or whose
// email isn't a tg:<id> client identifier.
func ParseAccessLine(line string) (AccessEvent, bool) {
	m := accessLineRE.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return AccessEvent{}, false
	}

	email := m[3]
	if !strings.HasPrefix(email, "tg:") {
		return AccessEvent{}, false
	}
	tgID, err := strconv.ParseInt(strings.TrimPrefix(email, "tg:"), 10, 64)
	if err != nil {
		return AccessEvent{}, false
	}

	ts, err := time.Parse(accessLineTimeLayout, m[1])
	if err != nil {
		return AccessEvent{}, false
	}

	return AccessEvent{Time: ts, IP: m[2], TGID: tgID}, true
}

// TailAccessLog returns the last n lines of the remote access log via a
// simple `tail` invocation.
func (s *Service) TailAccessLog(ctx context.Context, n int) ([]string, error) {
	out, err := s.remote.Run(ctx, fmt.Sprintf("tail -n %d %s", n, s.cfg.AccessLogPath))
	if err != nil {
		return nil, fmt.Errorf("xray: tailing access log: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return nil, nil
	}
	return strings.Split(strings.TrimRight(out, "\n"), "\n"), nil
}
