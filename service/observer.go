package service

import "github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"

// Observer receives session notifications. Callbacks run on the goroutine
// driving the session and must not block
type Observer interface {
	OnProgress(p Progress)
	OnPass(token core.Token, score core.ScoreResult)
	OnFail(score core.ScoreResult, reason string)
	OnTimeout()
	OnError(kind, message string)
}

// ObserverFuncs adapts optional functions to Observer. Nil fields are
// ignored
type ObserverFuncs struct {
	Progress func(Progress)
	Pass     func(core.Token, core.ScoreResult)
	Fail     func(core.ScoreResult, string)
	Timeout  func()
	Error    func(kind, message string)
}

func (o ObserverFuncs) OnProgress(p Progress) {
	if o.Progress != nil {
		o.Progress(p)
	}
}

func (o ObserverFuncs) OnPass(token core.Token, score core.ScoreResult) {
	if o.Pass != nil {
		o.Pass(token, score)
	}
}

func (o ObserverFuncs) OnFail(score core.ScoreResult, reason string) {
	if o.Fail != nil {
		o.Fail(score, reason)
	}
}

func (o ObserverFuncs) OnTimeout() {
	if o.Timeout != nil {
		o.Timeout()
	}
}

func (o ObserverFuncs) OnError(kind, message string) {
	if o.Error != nil {
		o.Error(kind, message)
	}
}
