package mqtt

import "fmt"

// TopicPrefix is the root of every topic Gray Logic Gate publishes itself.
const TopicPrefix = "graygate"

// Topics builds Gray Logic Gate's own topics for one site.
//
//	topics := mqtt.Topics{Site: "gate-001"}
//	topics.GateState() // "graygate/gate-001/gate/state"
type Topics struct {
	Site string
}

// Status is the retained online/offline topic, also used for the LWT.
func (t Topics) Status() string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, t.Site)
}

// GateState carries the committed gate state as a retained message.
func (t Topics) GateState() string {
	return fmt.Sprintf("%s/%s/gate/state", TopicPrefix, t.Site)
}

// GateEvent carries one message per actuation attempt.
func (t Topics) GateEvent() string {
	return fmt.Sprintf("%s/%s/gate/event", TopicPrefix, t.Site)
}

// All matches everything published for the site.
func (t Topics) All() string {
	return fmt.Sprintf("%s/%s/#", TopicPrefix, t.Site)
}
