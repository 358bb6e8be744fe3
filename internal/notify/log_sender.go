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

package notify

import (
	"context"
	"log/slog"
)

// LogSender is the default Sender for a deployment that hasn't wired in a
// chat-bot front end: it records what would have been sent instead of
// discarding it, so the dispatcher's decisions stay observable even with no
// delivery channel attached.
type LogSender struct{}

// NewLogSender builds a LogSender.
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send logs the message that would have been delivered to tgID and returns
// nil: the chat-bot surface that would actually deliver it is out of scope
// for this core.
func (LogSender) Send(_ context.Context, tgID int64, text string) error {
	slog.Info("notify: message (no chat-bot front end configured)", "tg_id", tgID, "text", text)
	return nil
}
