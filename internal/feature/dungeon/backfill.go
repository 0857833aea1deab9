package dungeon

import (
	"bufio"
	"context"
	"regexp"
	"strings"
	"time"
)

// chatTimestampLayouts are the two formats spec §4.8 names for backfill:
// "MM/DD HH:MM:SS AM/PM" and "DD-M HH:MM:SS". Neither carries a year, so
// every parsed timestamp lands on Go's zero year; that's fine for the
// durations backfill actually needs (Sub between two same-year stamps),
// but a log spanning a real year boundary would compute a wrong gap —
// an accepted limitation for a manual, occasional operation.
var chatTimestampLayouts = []string{
	"1/2 03:04:05 PM",
	"2-1 15:04:05",
}

var chatLinePattern = regexp.MustCompile(`^\s*\[?([0-9]{1,2}[/-][0-9]{1,2}\s+[0-9]{1,2}:[0-9]{2}:[0-9]{2}(?:\s*[AP]M)?)\]?\s*(.*)$`)

// BackfillResult summarizes one chat-history scan.
type BackfillResult struct {
	RunsReconstructed int
	LinesScanned      int
	Unparsed          int
}

// backfillState is the pending run being assembled while scanning lines in
// order; battleStarted opens it, battleEnded or partyFailed closes it.
type backfillState struct {
	run            *DungeonRun
	keyCountStamps []time.Time
}

// BackfillFromChatHistory reconstructs completed runs from pasted chat-log
// text (spec §4.8 "Backfill from chat history") the user copies out of the
// game's chat panel — this service has no DOM to scan, so the scan surface
// is the raw text itself rather than the browser's chat-history element.
// Lines are scanned in order; partyBattleStarted opens a pending run,
// partyKeyCount timestamps accumulate toward the authoritative duration,
// partyFailed discards, battleEnded finalizes and saves with the usual
// duplicate guard. A second partyKeyCount does not finalize on its own; it
// only makes the duration validated once battleEnded arrives.
func (t *Tracker) BackfillFromChatHistory(ctx context.Context, chatLog string) BackfillResult {
	var result BackfillResult
	var pending *backfillState

	scanner := bufio.NewScanner(strings.NewReader(chatLog))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		result.LinesScanned++

		ts, rest, ok := parseChatLine(line)
		if !ok {
			result.Unparsed++
			continue
		}

		switch {
		case strings.Contains(rest, "partyBattleStarted"):
			pending = &backfillState{run: &DungeonRun{
				RunID:       backfillRunID(ts, rest),
				DungeonName: extractDungeonName(rest),
				StartTime:   ts,
			}}
		case strings.Contains(rest, "partyKeyCount"):
			if pending == nil {
				continue
			}
			pending.keyCountStamps = append(pending.keyCountStamps, ts)
		case strings.Contains(rest, "partyFailed"):
			pending = nil
		case strings.Contains(rest, "battleEnded"):
			if pending == nil {
				continue
			}
			if t.finalizeBackfilledRun(ctx, pending, ts) {
				result.RunsReconstructed++
			}
			pending = nil
		}
	}

	return result
}

func (t *Tracker) finalizeBackfilledRun(ctx context.Context, pending *backfillState, endTime time.Time) bool {
	run := pending.run
	if len(pending.keyCountStamps) >= 2 {
		run.Validated = true
		run.Duration = pending.keyCountStamps[len(pending.keyCountStamps)-1].Sub(pending.keyCountStamps[0])
	} else {
		run.Validated = false
		run.Duration = endTime.Sub(run.StartTime)
	}
	if run.Duration < 0 {
		run.Duration = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendUnifiedRunLocked(ctx, run)
}

// parseChatLine splits a leading timestamp token from the rest of the
// line, trying each layout in chatTimestampLayouts in turn.
func parseChatLine(line string) (time.Time, string, bool) {
	m := chatLinePattern.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, "", false
	}
	raw, rest := m[1], m[2]

	for _, layout := range chatTimestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, rest, true
		}
	}
	return time.Time{}, "", false
}

var dungeonNamePattern = regexp.MustCompile(`partyBattleStarted[:\s]*(.*)$`)

func extractDungeonName(rest string) string {
	m := dungeonNamePattern.FindStringSubmatch(rest)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(strings.Trim(m[1], "-: "))
}

func backfillRunID(ts time.Time, rest string) string {
	return "backfill-" + ts.Format("0102150405") + "-" + fnv32a(rest)
}

// fnv32a is a tiny non-cryptographic fold used only to keep backfilled
// RunIDs stable across repeated scans of the same text.
func fnv32a(s string) string {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	const hex = "0123456789abcdef"
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = hex[h&0xf]
		h >>= 4
	}
	return string(buf)
}
