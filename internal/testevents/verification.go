package testevents

import (
	"context"
	"fmt"
	"sort"
)

// verifyReport compares report counters with what the generator produced.
func verifyReport(gen *Log, events, attributed, unattributed, unconsumed int) error {
	switch {
	case events != len(gen.Events):
		return fmt.Errorf("%w: report has %d events, generated %d", ErrVerification, events, len(gen.Events))
	case attributed != len(gen.Causes):
		return fmt.Errorf("%w: report has %d attributed, expected %d", ErrVerification, attributed, len(gen.Causes))
	case unattributed != len(gen.Orphans):
		return fmt.Errorf("%w: report has %d unattributed, expected %d", ErrVerification, unattributed, len(gen.Orphans))
	case unconsumed != 0:
		return fmt.Errorf("%w: report has %d unconsumed causes, expected none", ErrVerification, unconsumed)
	}
	return nil
}

// verifyCauses queries the cause of up to samples effects, spread evenly
// over the log, plus every orphan.
func verifyCauses(ctx context.Context, client *Client, sessionID string, gen *Log, samples int) (int, error) {
	effects := make([]int64, 0, len(gen.Causes))
	for seq := range gen.Causes {
		effects = append(effects, seq)
	}
	sort.Slice(effects, func(i, j int) bool { return effects[i] < effects[j] })

	checked := 0
	if samples > 0 && len(effects) > 0 {
		step := max(len(effects)/samples, 1)
		for i := 0; i < len(effects) && checked < samples; i += step {
			seq := effects[i]
			cause, found, err := client.CauseOf(ctx, sessionID, seq)
			if err != nil {
				return checked, err
			}
			checked++
			if !found || cause != gen.Causes[seq] {
				return checked, fmt.Errorf("%w: effect %d attributed to %d (found=%t), expected %d",
					ErrVerification, seq, cause, found, gen.Causes[seq])
			}
		}
	}

	for _, seq := range gen.Orphans {
		cause, found, err := client.CauseOf(ctx, sessionID, seq)
		if err != nil {
			return checked, err
		}
		checked++
		if found {
			return checked, fmt.Errorf("%w: orphan effect %d attributed to %d", ErrVerification, seq, cause)
		}
	}
	return checked, nil
}
