package conversation

// View is the presentation surface a front end provides. Calls arrive on the
// goroutine that issued the intent.
type View interface {
	AppendMessage(m Message)
	ShowTyping()
	HideTyping()
	// RenderCandidates replaces the candidate area. An empty Panel clears it.
	RenderCandidates(p Panel)
	SetConfirmEnabled(enabled bool)
	// Alert is a blocking notice outside the transcript.
	Alert(text string)
	ShowConversation()
	ShowEntry()
	FocusEntry()
}

// NopView discards everything.
type NopView struct{}

func (NopView) AppendMessage(Message) {}
func (NopView) ShowTyping() {}
func (NopView) HideTyping() {}
func (NopView) RenderCandidates(Panel) {}
func (NopView) SetConfirmEnabled(bool) {}
func (NopView) Alert(string) {}
func (NopView) ShowConversation() {}
func (NopView) ShowEntry() {}
func (NopView) FocusEntry() {}
