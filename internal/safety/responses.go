package safety

import (
	"fmt"
	"strings"

	"companion-bot/backend/internal/models"
)

// Responder renders the crisis intervention reply for a signal. Replies
// are direct and resource-first: a crisis turn is not the place for
// open-ended conversation.
type Responder struct {
	hotline string
}

func NewResponder(hotline string) *Responder {
	if hotline == "" {
		hotline = "988"
	}
	return &Responder{hotline: hotline}
}

const responseFooter = "\n\n---\n" +
	"I'm an automated companion designed for supportive conversations, " +
	"not a substitute for professional mental health care or emergency services. " +
	"Please use the resources above to get the help you deserve."

// Respond builds the crisis reply for the given signal.
func (r *Responder) Respond(signal *CrisisSignal) string {
	var b strings.Builder
	b.WriteString("I'm very concerned about what you've shared. ")

	switch signal.Category {
	case models.CrisisSuicide:
		if signal.Severity == models.SeverityCritical || signal.Severity == models.SeverityHigh {
			fmt.Fprintf(&b,
				"This is a crisis situation that requires immediate professional support.\n\n"+
					"Please contact the 988 Suicide & Crisis Lifeline:\n"+
					"- Call or text %s (24/7, free, confidential)\n"+
					"- Chat online: https://988lifeline.org/chat/\n\n"+
					"If you're in immediate danger:\n"+
					"- Call 911 or go to your nearest emergency room\n"+
					"- Don't stay alone, reach out to someone you trust\n\n"+
					"You deserve support, and these professionals are trained to help. "+
					"Real people who care are available 24/7 at the numbers above.",
				r.hotline)
		} else {
			fmt.Fprintf(&b,
				"It sounds like you're going through a really difficult time. "+
					"While I'm here to listen, I want you to know about resources that can provide more support:\n\n"+
					"988 Suicide & Crisis Lifeline: call or text %s anytime (24/7, free).\n\n"+
					"These counselors are trained to help with thoughts of suicide. "+
					"Would you like to talk about what's been going on?",
				r.hotline)
		}

	case models.CrisisSelfHarm:
		fmt.Fprintf(&b,
			"Self-harm is a sign of serious distress, and you deserve support.\n\n"+
				"Crisis resources:\n"+
				"- 988 Suicide & Crisis Lifeline: %s (24/7)\n"+
				"- Crisis Text Line: text HOME to 741741\n\n"+
				"Immediate coping strategies: hold ice in your hand, snap a rubber band "+
				"on your wrist, or draw on your skin with red marker.\n\n"+
				"Please reach out to a mental health professional who can help address "+
				"what's causing this urge.",
			r.hotline)

	case models.CrisisHarmToOthers:
		fmt.Fprintf(&b,
			"Thoughts of harming others are a serious concern. Please seek immediate help.\n\n"+
				"Crisis resources:\n"+
				"- 988 Suicide & Crisis Lifeline: %s\n"+
				"- Go to your nearest emergency room\n"+
				"- Call 911 if anyone is in immediate danger\n\n"+
				"A mental health professional can help you work through these thoughts safely.",
			r.hotline)

	case models.CrisisAbuse:
		fmt.Fprintf(&b,
			"I'm sorry you're experiencing this. Abuse is never okay, and you deserve safety and support.\n\n"+
				"Resources:\n"+
				"- National Domestic Violence Hotline: 1-800-799-7233 (24/7)\n"+
				"- Crisis Text Line: text HOME to 741741\n"+
				"- %s for emotional support\n\n"+
				"These services can help with safety planning and connecting you with local "+
				"resources. You don't have to face this alone.",
			r.hotline)

	case models.CrisisSubstance:
		if signal.Severity == models.SeverityCritical {
			b.WriteString(
				"This is a medical emergency. Please:\n" +
					"- Call 911 immediately\n" +
					"- Don't stay alone\n" +
					"- Don't delay getting help\n\n" +
					"Overdoses and dangerous substance combinations need immediate medical attention.")
		} else {
			fmt.Fprintf(&b,
				"Substance use concerns deserve professional support.\n\n"+
					"Resources:\n"+
					"- SAMHSA National Helpline: 1-800-662-4357 (24/7, free)\n"+
					"- Crisis support: %s\n\n"+
					"These services can connect you with treatment options and support.",
				r.hotline)
		}

	case models.CrisisMedical:
		b.WriteString(
			"This sounds like a medical emergency.\n\n" +
				"Please call 911 or go to your nearest emergency room immediately.\n\n" +
				"Don't wait. Medical emergencies require immediate professional care, " +
				"and I cannot provide medical assistance.")
	}

	b.WriteString(responseFooter)
	return b.String()
}
