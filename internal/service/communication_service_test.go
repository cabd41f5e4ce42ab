package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camatch/camatch-api/internal/dto"
	"github.com/camatch/camatch-api/internal/models"
	appErrors "github.com/camatch/camatch-api/pkg/errors"
	"github.com/camatch/camatch-api/pkg/jobs"
	"github.com/camatch/camatch-api/pkg/mailer"
)

func communicationDetails() []models.AssignmentDetail {
	name := "Jane Doe"
	instructor := "stone@university.edu"
	return []models.AssignmentDetail{
		{
			Assignment:      models.Assignment{ID: "a1", StudentID: "s1", CourseID: "c1", Status: models.AssignmentStatusConfirmed},
			StudentName:     &name,
			StudentUNI:      "jd2451",
			StudentEmail:    "jane@university.edu",
			CourseCode:      "IEOR4500",
			CourseTitle:     "Applications Programming",
			InstructorEmail: &instructor,
		},
		{
			Assignment:   models.Assignment{ID: "a2", StudentID: "s2", CourseID: "c2", Status: models.AssignmentStatusPending},
			StudentUNI:   "mk3001",
			StudentEmail: "mark@university.edu",
			CourseCode:   "IEOR4501",
			CourseTitle:  "Tools for Analytics",
		},
	}
}

func TestCommunicationServiceCompose(t *testing.T) {
	source := &stubAssignmentSource{details: communicationDetails()}
	dispatcher := &stubDispatcher{}
	svc := NewCommunicationService(source, dispatcher, nil, nil)

	resp, err := svc.Compose(context.Background(), dto.ComposeCommunicationRequest{
		Subject: "TA onboarding",
		Body:    "Welcome aboard. Orientation details follow.",
	})
	require.NoError(t, err)

	assert.Equal(t, "TA onboarding", resp.Subject)
	require.Len(t, resp.Recipients, 2)
	assert.Equal(t, "jane@university.edu", resp.Recipients[0].Email)
	assert.Equal(t, "IEOR4500", resp.Recipients[0].CourseCode)
	assert.Equal(t, 2, resp.Queued)

	require.Len(t, dispatcher.enqueued, 2)
	msg, ok := dispatcher.enqueued[0].Payload.(mailer.Message)
	require.True(t, ok)
	assert.Equal(t, "jane@university.edu", msg.To)
	assert.Empty(t, msg.CC)
	assert.Equal(t, JobTypeMailDelivery, dispatcher.enqueued[0].Type)
}

func TestCommunicationServiceComposeCCInstructors(t *testing.T) {
	source := &stubAssignmentSource{details: communicationDetails()}
	dispatcher := &stubDispatcher{}
	svc := NewCommunicationService(source, dispatcher, nil, nil)

	_, err := svc.Compose(context.Background(), dto.ComposeCommunicationRequest{
		Subject:       "Schedule change",
		Body:          "Lab moved to Friday.",
		CCInstructors: true,
	})
	require.NoError(t, err)

	require.Len(t, dispatcher.enqueued, 2)
	first, _ := dispatcher.enqueued[0].Payload.(mailer.Message)
	assert.Equal(t, []string{"stone@university.edu"}, first.CC)
	// Second course has no instructor email on file.
	second, _ := dispatcher.enqueued[1].Payload.(mailer.Message)
	assert.Empty(t, second.CC)
}

func TestCommunicationServiceComposeFilterPassthrough(t *testing.T) {
	source := &stubAssignmentSource{details: nil}
	dispatcher := &stubDispatcher{}
	svc := NewCommunicationService(source, dispatcher, nil, nil)

	status := models.AssignmentStatusConfirmed
	courseID := "c1"
	resp, err := svc.Compose(context.Background(), dto.ComposeCommunicationRequest{
		CourseID: &courseID,
		Status:   &status,
		Subject:  "Reminder",
		Body:     "Submit hours.",
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Recipients)
	assert.Zero(t, resp.Queued)

	require.NotNil(t, source.gotten)
	assert.Equal(t, "c1", source.gotten.CourseID)
	require.NotNil(t, source.gotten.Status)
	assert.Equal(t, status, *source.gotten.Status)
}

func TestCommunicationServiceComposeValidation(t *testing.T) {
	svc := NewCommunicationService(&stubAssignmentSource{}, &stubDispatcher{}, nil, nil)

	_, err := svc.Compose(context.Background(), dto.ComposeCommunicationRequest{Body: "no subject"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCommunicationServiceComposeQueueFailure(t *testing.T) {
	source := &stubAssignmentSource{details: communicationDetails()}
	dispatcher := &stubDispatcher{err: errors.New("queue full")}
	svc := NewCommunicationService(source, dispatcher, nil, nil)

	resp, err := svc.Compose(context.Background(), dto.ComposeCommunicationRequest{
		Subject: "Hello",
		Body:    "World",
	})
	require.NoError(t, err)
	assert.Len(t, resp.Recipients, 2)
	assert.Zero(t, resp.Queued)
}

func TestMailWorkerHandle(t *testing.T) {
	sent := make([]mailer.Message, 0, 1)
	worker := NewMailWorker(mailerFunc(func(ctx context.Context, msg mailer.Message) error {
		sent = append(sent, msg)
		return nil
	}), nil)

	err := worker.Handle(context.Background(), jobs.Job{
		ID:      "job-1",
		Type:    JobTypeMailDelivery,
		Payload: mailer.Message{To: "jane@university.edu", Subject: "Hi", Body: "Test"},
	})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "jane@university.edu", sent[0].To)
}

type mailerFunc func(ctx context.Context, msg mailer.Message) error

func (f mailerFunc) Send(ctx context.Context, msg mailer.Message) error { return f(ctx, msg) }
