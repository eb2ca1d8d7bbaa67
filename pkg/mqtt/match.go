package mqtt

import "strings"

// TopicMatches reports whether topic matches filter. The filter may use the
// + and # wildcards and may carry a $share/<group>/ prefix.
func TopicMatches(filter, topic string) bool {
	filter = stripShare(filter)
	if filter == topic {
		return true
	}

	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}

	return len(filterParts) == len(topicParts)
}

func stripShare(filter string) string {
	if strings.HasPrefix(filter, "$share/") {
		parts := strings.SplitN(filter, "/", 3)
		if len(parts) == 3 {
			return parts[2]
		}
	}
	return filter
}
