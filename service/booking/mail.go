package booking

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/OAddae2/Playpark-server/cmd/models"
	"gopkg.in/gomail.v2"
)

func sendBookingEmail(booking *models.Booking, subject, body string) {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	// Email is best effort; without SMTP config we skip quietly.
	if smtpHost == "" {
		return
	}

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", booking.ContactEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		log.Printf("Invalid SMTP port for booking %d: %v", booking.ID, err)
		return
	}
	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)

	if err := d.DialAndSend(m); err != nil {
		log.Printf("Error sending booking email for booking %d: %v", booking.ID, err)
	}
}

func sendConfirmationEmail(booking *models.Booking) {
	sendBookingEmail(booking,
		"Your party booking is confirmed",
		fmt.Sprintf("Payment received for %s's party on %s. Booking reference: %d. See you there!",
			booking.ChildName, booking.PartyDate.Format("2 January 2006"), booking.ID))
}

func sendCancellationEmail(booking *models.Booking) {
	body := fmt.Sprintf("Your booking for %s's party on %s has been canceled.",
		booking.ChildName, booking.PartyDate.Format("2 January 2006"))
	if booking.RefundID != "" {
		body += fmt.Sprintf(" A refund of %.2f has been issued (status: %s).",
			booking.RefundAmount, booking.RefundStatus)
	}
	sendBookingEmail(booking, "Your party booking was canceled", body)
}
