package response

// FallbackText is returned whenever a reply cannot be built.
const FallbackText = "I hear you, and I want you to know that your feelings are valid. " +
	"Sometimes it helps to take a moment to breathe. Would you like to try a quick breathing exercise together?"

const crisisText = `I'm really concerned about what you're sharing with me. Your life has value, and there are people who want to help you through this difficult time.

Please reach out to a crisis helpline right away:
• National Suicide Prevention Lifeline: 988 or 1-800-273-8255
• Crisis Text Line: Text HOME to 741741
• International Association for Suicide Prevention: https://www.iasp.info/resources/Crisis_Centres/

You don't have to go through this alone. Professional counselors are available 24/7 and they understand what you're experiencing. Would you be willing to reach out to one of these resources?

If you're in immediate danger, please call emergency services (911) or go to your nearest emergency room.`

// CrisisHotlines lists contacts that every crisis reply includes.
var CrisisHotlines = []string{"988", "1-800-273-8255", "741741"}

const (
	highDistressOpener = "I can sense that you're going through a really difficult time right now, " +
		"and I want you to know that your feelings are completely valid. What you're experiencing sounds overwhelming."

	strategyIntro = "Let's try something together that might help you feel a bit more grounded. " +
		"Would you be open to trying this coping technique?"

	strategyReassurance = "Take your time with it, and remember that it's okay if it doesn't feel perfect the first time."

	checkInQuestion = "How are you feeling right now? I'm here to listen."

	breathingFallback = `Right now, let's focus on getting through this moment. Can you try taking three slow, deep breaths with me?

1. Breathe in slowly for 4 counts
2. Hold for 4 counts
3. Breathe out slowly for 6 counts

You're not alone in this. What's one small thing that usually brings you even a tiny bit of comfort?`
)

var empathyOpeners = map[string]string{
	"anxiety": "I hear that you're feeling anxious, and that can be really uncomfortable. " +
		"Anxiety often tries to convince us that things are worse than they are.",
	"sadness": "It sounds like you're carrying some heavy feelings right now. " +
		"Sadness can feel overwhelming, but it's also a natural response to difficult situations.",
	"stress": "It sounds like you're under a lot of pressure right now. " +
		"Stress can make everything feel more difficult than usual.",
	"anger": "I can sense your frustration, and it's understandable to feel angry when things aren't going the way you hoped.",
	"fear":  "Fear can be paralyzing, and it sounds like you're dealing with some scary thoughts or situations right now.",
}

const (
	genericEmpathyOpener = "I hear you, and I want you to know that what you're feeling makes sense given what you're going through."

	reflectivePrompt = "Can you tell me a bit more about what's contributing to these feelings? " +
		"Sometimes talking through what's happening can help us understand it better.\n\n" +
		"In the meantime, remember that difficult emotions are temporary, even when they feel overwhelming. " +
		"You've gotten through tough times before, and you have the strength to get through this too."
)

const (
	positiveFollowUp = "I'm so glad to hear that! It's wonderful when things feel a bit brighter. " +
		"What's been contributing to these positive feelings?"
	workLifePrompt     = "Work can definitely impact how we feel. How has your work-life balance been lately?"
	relationshipPrompt = "Relationships can be such an important part of our wellbeing. " +
		"How are things going with the people close to you?"
)

var supportivePool = []string{
	"Thank you for sharing that with me. How has your day been overall?",
	"I appreciate you opening up. What's been on your mind lately?",
	"It sounds like you're reflecting on some important things. How are you feeling about everything?",
	"I'm glad we can talk about this. What would be most helpful for you right now?",
}
