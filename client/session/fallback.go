package session

import "time"

// 首次使用/演示模式下 store 为空时的兜底会话列表
// 这是显式的回退路径，不能被静默吞掉
func fallbackConversations(now time.Time) []*Conversation {
	fiveHoursAgo := now.Add(-5 * time.Hour)
	lastSeen := now.Add(-45 * time.Minute)
	return []*Conversation{
		{
			ID:    "conv-ux-mentor",
			Title: "UX Mentor Lab Cohort",
			Kind:  KindGroup,
			LastMessage: &LastMessage{
				Preview:   "Great! I'll upload the prototype walkthrough tonight.",
				CreatedAt: now,
			},
			UnreadCount:  2,
			Participants: []string{"demo-mentor", "learner-01", "learner-02"},
			Status:       "online",
		},
		{
			ID:    "conv-ayesha",
			Title: "Ayesha Rahman",
			Kind:  KindDirect,
			LastMessage: &LastMessage{
				Preview:   "Thanks for the feedback! Updated slides attached.",
				CreatedAt: fiveHoursAgo,
			},
			UnreadCount:  0,
			Participants: []string{"demo-mentor", "learner-01"},
			Status:       "offline",
			LastSeen:     &lastSeen,
		},
	}
}

// 兜底会话对应的演示消息，store 为空时选中会话能看到完整线程
func fallbackMessages(now time.Time) map[string][]*Message {
	return map[string][]*Message{
		"conv-ux-mentor": {
			{
				ID:             "demo-ux-1",
				ConversationID: "conv-ux-mentor",
				SenderID:       "demo-mentor",
				SenderName:     "Priya Nair",
				Text:           "Welcome to the cohort! This week we're reviewing each other's onboarding flows.",
				CreatedAt:      now.Add(-26 * time.Hour),
				Status:         StatusRead,
			},
			{
				ID:             "demo-ux-2",
				ConversationID: "conv-ux-mentor",
				SenderID:       "learner-02",
				SenderName:     "Tomas Herrera",
				Text:           "I pushed my Figma link to the shared board, feedback welcome.",
				CreatedAt:      now.Add(-3 * time.Hour),
				Status:         StatusDelivered,
			},
			{
				ID:             "demo-ux-3",
				ConversationID: "conv-ux-mentor",
				SenderID:       "demo-mentor",
				SenderName:     "Priya Nair",
				Text:           "Great! I'll upload the prototype walkthrough tonight.",
				CreatedAt:      now,
				Status:         StatusDelivered,
			},
		},
		"conv-ayesha": {
			{
				ID:             "demo-ayesha-1",
				ConversationID: "conv-ayesha",
				SenderID:       "learner-01",
				SenderName:     "You",
				Text:           "Your deck is solid, I'd just tighten the research summary slide.",
				CreatedAt:      now.Add(-6 * time.Hour),
				Status:         StatusRead,
			},
			{
				ID:             "demo-ayesha-2",
				ConversationID: "conv-ayesha",
				SenderID:       "demo-ayesha",
				SenderName:     "Ayesha Rahman",
				Text:           "Thanks for the feedback! Updated slides attached.",
				FileURL:        "https://cdn.example.com/demo/usability-findings-v2.pdf",
				FileName:       "usability-findings-v2.pdf",
				FileType:       "application/pdf",
				CreatedAt:      now.Add(-5 * time.Hour),
				Status:         StatusRead,
			},
		},
	}
}
