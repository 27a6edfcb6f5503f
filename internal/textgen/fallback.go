package textgen

import "strings"

type fallbackGroup struct {
	keywords []string
	comments []string
}

var fallbackGroups = []fallbackGroup{
	{
		keywords: []string{"congratulat", "milestone", "proud", "excited to announce", "thrilled", "awarded", "certified", "graduated", "promotion", "achievement", "celebrating"},
		comments: []string{
			"Congratulations! Well-deserved achievement.",
			"Wonderful news, congratulations on this!",
			"Amazing accomplishment, well done!",
		},
	},
	{
		keywords: []string{" tip", "tips ", "advice", "lesson", "learned", "mistake", "here's what", "things i wish", "how to ", "guide"},
		comments: []string{
			"Solid advice, thanks for sharing these lessons.",
			"Great takeaways, definitely noting these down.",
			"Really useful advice, thank you for this.",
		},
	},
	{
		keywords: []string{"event", "conference", "summit", "webinar", "workshop", "keynote", "meetup", "panel"},
		comments: []string{
			"Sounds like a great event, thanks for sharing!",
			"Great recap, thanks for sharing what you learned.",
		},
	},
	{
		keywords: []string{"launch", "introducing", "new feature", "release", "announcing", "just shipped"},
		comments: []string{
			"Exciting launch, best of luck with this!",
			"Looks promising, congratulations on the launch!",
		},
	},
	{
		keywords: []string{"my journey", "my story", "years ago", "when i started", "looking back", "reflection", "burnout"},
		comments: []string{
			"Thanks for sharing your experience, really inspiring.",
			"This is a powerful story, thanks for sharing.",
		},
	},
	{
		keywords: []string{"i think", "i believe", "unpopular opinion", "hot take", "the truth is", "we need to", "the problem with"},
		comments: []string{
			"Really thoughtful take on this, appreciate the perspective.",
			"Well said, this is an important perspective.",
		},
	},
}

var defaultComments = []string{
	"Thanks for sharing this, really valuable perspective.",
	"Appreciate you putting this out there, very insightful.",
	"Great post, this adds real value to the conversation.",
}

// fallbackFor は投稿の話題に合う定型コメント群を返す。
func fallbackFor(postText string) []string {
	t := strings.ToLower(postText)
	if t == "" {
		return defaultComments
	}
	for _, g := range fallbackGroups {
		for _, kw := range g.keywords {
			if strings.Contains(t, kw) {
				return g.comments
			}
		}
	}
	return defaultComments
}
