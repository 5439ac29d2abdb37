// Package packet frames application messages inside transport payloads.
//
// Each frame is a type byte, a u16 body size and the body. A payload may
// hold several frames back to back. The size is written after the body is
// encoded, and on decode a body that does not consume exactly its declared
// size is rejected while the reader still moves on to the next frame.
//
//	payload, err := packet.Marshal(&packet.ChatMessage{Text: "hi"})
//	...
//	d := packet.NewDispatcher(packet.NewRegistry())
//	d.Handle(packet.TypeChatMessage, func(p packet.Packet, from *identity.ID) error {
//	    fmt.Println(p.(*packet.ChatMessage).Text)
//	    return nil
//	})
//	d.Dispatch(payload, sender)
package packet
