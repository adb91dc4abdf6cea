package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes.
const (
	// TopicPrefix is the root of every service topic.
	TopicPrefix = "equipstatus"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for the service's MQTT topics.
//
//	mqtt.Topics{}.AllEquipmentReports()
//	// Returns: "equipstatus/equipment/+/report"
type Topics struct{}

// SystemStatus returns the retained service status topic (online/offline, LWT).
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllEquipmentReports returns the wildcard filter for every equipment report.
func (Topics) AllEquipmentReports() string {
	return TopicPrefix + "/equipment/+/report"
}

// WildcardSegment returns the part of topic that matched the first "+" in
// filter. The boolean is false when filter has no "+" or the topic does
// not match the filter's shape.
//
// Example:
//
//	WildcardSegment("equipstatus/equipment/+/report", "equipstatus/equipment/PRESS_1/report")
//	// Returns: "PRESS_1", true
func WildcardSegment(filter, topic string) (string, bool) {
	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")
	if len(filterParts) != len(topicParts) {
		return "", false
	}

	segment, found := "", false
	for i, part := range filterParts {
		switch {
		case part == "+":
			if !found {
				segment, found = topicParts[i], true
			}
		case part != topicParts[i]:
			return "", false
		}
	}
	return segment, found
}

// ValidateFilter checks filter against the MQTT wildcard rules: "+" must
// fill a whole level and "#" must be the whole last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#" && i != len(levels)-1:
			return fmt.Errorf("%w: %q has \"#\" before the last level", ErrInvalidTopic, filter)
		case level != "+" && level != "#" && strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: %q mixes a wildcard into a level", ErrInvalidTopic, filter)
		}
	}
	return nil
}
