package scheduler

import (
	"fmt"

	"companion-bot/backend/internal/models"
)

// followupMessage renders the check-in text for one follow-up. The
// "before" variant nudges preparation; the "after" variant asks how it
// went.
func followupMessage(event *models.TrackedEvent, offset models.FollowupOffset) string {
	if offset == models.OffsetBefore {
		switch event.Type {
		case models.EventTest:
			return fmt.Sprintf("Hi! Just checking in, your %s is tomorrow. How's your preparation going?", event.Description)
		case models.EventAppointment:
			return fmt.Sprintf("Reminder: you have your %s tomorrow. Is there anything you want to prepare or discuss?", event.Description)
		case models.EventDeadline:
			return fmt.Sprintf("Hi! Your deadline is tomorrow. How's progress on %s?", event.Description)
		case models.EventInterview:
			return "Your interview is tomorrow! How are you feeling? Need any last-minute tips?"
		case models.EventPresentation:
			return fmt.Sprintf("Your presentation is tomorrow. How's the prep for %s coming along?", event.Description)
		default:
			return fmt.Sprintf("Hi! Just a reminder, %s is tomorrow. How are you doing with it?", event.Description)
		}
	}

	switch event.Type {
	case models.EventTest:
		return "Hey! How did your test go yesterday? I'd love to hear about it!"
	case models.EventAppointment:
		return "How was your appointment yesterday? Hope everything went okay."
	case models.EventDeadline:
		return fmt.Sprintf("How did %s go? Did you meet the deadline?", event.Description)
	case models.EventInterview:
		return "How was your interview? I'm curious to hear how it went!"
	case models.EventPresentation:
		return "How did your presentation go? Hope it landed well!"
	default:
		return fmt.Sprintf("How did %s go? Hope everything went well!", event.Description)
	}
}
