package proto

import (
	"fmt"

	"gotibia/wire"
	"gotibia/world"
)

func decodeLogin(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := LoginSucceeded{PlayerID: r.U32(), ServerBeat: r.U16()}
	if d.on(GameNewSpeedLaw) {
		ev.SpeedA = r.Double()
		ev.SpeedB = r.Double()
		ev.SpeedC = r.Double()
	}
	if !d.on(GameDynamicBugReporter) {
		ev.CanReportBugs = r.Bool()
	}
	if d.on(GamePvpFrameOption) {
		ev.PvpFrame = r.Bool()
	}
	if d.on(GameExpertPvpMode) {
		ev.ExpertMode = r.Bool()
	}
	if d.on(GameIngameStore) {
		ev.StoreURL = r.String()
		ev.CoinsPacketSize = r.U16()
	}
	if d.version() >= 1281 {
		ev.Exiva = r.Bool()
		if d.on(GameTournamentPackets) {
			ev.Tournament = r.Bool()
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

// decodeLoginOrPending covers opcode 10, which means "pending" on
// protocols with a pending state and carries the full login otherwise.
func decodeLoginOrPending(d *Decoder, r *wire.Reader) ([]Event, error) {
	if d.on(GameLoginPending) {
		return []Event{PendingGame{}}, nil
	}
	return decodeLogin(d, r)
}

func decodeEnterGame(d *Decoder, r *wire.Reader) ([]Event, error) {
	return []Event{EnterGame{}}, nil
}

func decodeChallenge(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := ChallengeReceived{Timestamp: r.U32(), Random: r.U8()}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{ev}, nil
}

func decodeUpdateNeeded(d *Decoder, r *wire.Reader) ([]Event, error) {
	sig := r.String()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{LoginFailed{Kind: FailUpdateNeeded, Reason: "Update needed: " + sig}}, nil
}

func decodeLoginError(d *Decoder, r *wire.Reader) ([]Event, error) {
	msg := r.String()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if msg == "" {
		msg = "Login error"
	}
	return []Event{LoginFailed{Kind: FailLoginError, Reason: msg}}, nil
}

func decodeLoginAdvice(d *Decoder, r *wire.Reader) ([]Event, error) {
	msg := r.String()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{LoginAdvice{Text: msg}}, nil
}

func decodeLoginWait(d *Decoder, r *wire.Reader) ([]Event, error) {
	msg := r.String()
	secs := r.U8()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{LoginFailed{Kind: FailLoginWait, Reason: fmt.Sprintf("%s (%ds)", msg, secs)}}, nil
}

func decodeSessionEnd(d *Decoder, r *wire.Reader) ([]Event, error) {
	reason := r.U8()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return []Event{LoginFailed{Kind: FailSessionEnd, Reason: fmt.Sprintf("Session ended (%d)", reason)}}, nil
}

func decodePing(d *Decoder, r *wire.Reader) ([]Event, error) {
	return []Event{PingReceived{}}, nil
}

func decodePingBack(d *Decoder, r *wire.Reader) ([]Event, error) {
	return []Event{PingBackReceived{}}, nil
}

// decodeSkipRest discards the remainder of the message.
func decodeSkipRest(d *Decoder, r *wire.Reader) ([]Event, error) {
	r.Rest()
	return nil, nil
}

func decodeNop(d *Decoder, r *wire.Reader) ([]Event, error) {
	return nil, nil
}

func decodeCancelWalk(d *Decoder, r *wire.Reader) ([]Event, error) {
	ev := CancelWalk{Dir: world.InvalidDirection}
	if r.Remaining() > 0 {
		ev.Dir = world.Direction(r.U8())
	}
	return []Event{ev}, r.Err()
}

func decodeWalkWait(d *Decoder, r *wire.Reader) ([]Event, error) {
	var ev WalkWait
	if r.Remaining() >= 2 {
		ev.Millis = r.U16()
	}
	return []Event{ev}, r.Err()
}
