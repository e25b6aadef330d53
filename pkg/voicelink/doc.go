// ABOUTME: Session orchestrator for voicelink conversations
// ABOUTME: Wires device audio, the pipeline and the transport into one call
// Package voicelink runs realtime voice conversations with a speech service.
//
// A Session owns one call at a time. StartConversation acquires the
// microphone, selects a delivery strategy, starts the audio engine and opens
// the transport. StopConversation tears all of it down and is safe to call
// at any time.
//
// Example:
//
//	session := voicelink.NewSession(device.NewHost(device.HostConfig{}), voicelink.Handlers{
//		OnConversationEnded: func(info voicelink.EndInfo) {
//			log.Printf("Call ended: %d %s", info.Code, info.Reason)
//		},
//	})
//
//	err := session.StartConversation(ctx, voicelink.Config{
//		CallID:     "call_123",
//		SampleRate: 24000,
//	})
package voicelink
