package api

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/errors"
	"github.com/Ricardolombre/acdn-elearning/internal/player"
	"github.com/Ricardolombre/acdn-elearning/internal/progress"
)

const ServiceName = "elearning.v1.QuizService"

type (
	SaveQuizRequest struct {
		// Definition is a quiz definition document, the same format the import command reads.
		Definition json.RawMessage `json:"definition"`
	}

	GetQuizRequest struct {
		QuizID   string `json:"quiz_id,omitempty"`
		LessonID string `json:"lesson_id,omitempty"`
	}

	QuizResponse struct {
		Definition domain.Definition `json:"definition"`
	}

	DeleteQuizRequest struct {
		QuizID string `json:"quiz_id"`
	}

	DeleteQuizResponse struct{}

	StartQuizRequest struct {
		LessonID string `json:"lesson_id"`
	}

	SelectOptionRequest struct {
		QuizID     string `json:"quiz_id"`
		QuestionID string `json:"question_id"`
		OptionID   string `json:"option_id"`
	}

	// PlayerRequest addresses the caller's attempt on a quiz.
	PlayerRequest struct {
		QuizID string `json:"quiz_id"`
	}

	PlayerResponse struct {
		View player.View `json:"view"`
		// Completion is set when the call graded the attempt.
		Completion *Completion `json:"completion,omitempty"`
	}

	CompleteLessonRequest struct {
		LessonID string `json:"lesson_id"`
		ResultID string `json:"result_id,omitempty"`
	}

	Completion struct {
		Status    progress.Status `json:"status"`
		Score     int             `json:"score"`
		Completed bool            `json:"completed"`
	}

	GetCourseProgressRequest struct {
		CourseID string `json:"course_id"`
	}

	GetCourseProgressResponse struct {
		Lessons map[string]bool `json:"lessons"`
	}

	GetNextLessonRequest struct {
		LessonID string `json:"lesson_id"`
	}

	GetNextLessonResponse struct {
		Lesson    *domain.Lesson `json:"lesson,omitempty"`
		Reachable bool           `json:"reachable"`
		Completed bool           `json:"completed"`
	}

	ListResultsRequest struct {
		QuizID string `json:"quiz_id"`
		// UserID defaults to the caller. Only admins may list another learner.
		UserID         string `json:"user_id,omitempty"`
		IncludeAnswers bool   `json:"include_answers,omitempty"`
	}

	ResultEntry struct {
		Result  domain.Result   `json:"result"`
		Answers []domain.Answer `json:"answers,omitempty"`
	}

	ListResultsResponse struct {
		Results []ResultEntry `json:"results"`
	}
)

type QuizServiceServer interface {
	SaveQuiz(context.Context, *SaveQuizRequest) (*QuizResponse, error)
	GetQuiz(context.Context, *GetQuizRequest) (*QuizResponse, error)
	DeleteQuiz(context.Context, *DeleteQuizRequest) (*DeleteQuizResponse, error)
	StartQuiz(context.Context, *StartQuizRequest) (*PlayerResponse, error)
	SelectOption(context.Context, *SelectOptionRequest) (*PlayerResponse, error)
	GetAttempt(context.Context, *PlayerRequest) (*PlayerResponse, error)
	NextQuestion(context.Context, *PlayerRequest) (*PlayerResponse, error)
	PreviousQuestion(context.Context, *PlayerRequest) (*PlayerResponse, error)
	SubmitQuiz(context.Context, *PlayerRequest) (*PlayerResponse, error)
	RetakeQuiz(context.Context, *PlayerRequest) (*PlayerResponse, error)
	CompleteLesson(context.Context, *CompleteLessonRequest) (*Completion, error)
	GetCourseProgress(context.Context, *GetCourseProgressRequest) (*GetCourseProgressResponse, error)
	GetNextLesson(context.Context, *GetNextLessonRequest) (*GetNextLessonResponse, error)
	ListResults(context.Context, *ListResultsRequest) (*ListResultsResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QuizServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		method("SaveQuiz", QuizServiceServer.SaveQuiz),
		method("GetQuiz", QuizServiceServer.GetQuiz),
		method("DeleteQuiz", QuizServiceServer.DeleteQuiz),
		method("StartQuiz", QuizServiceServer.StartQuiz),
		method("SelectOption", QuizServiceServer.SelectOption),
		method("GetAttempt", QuizServiceServer.GetAttempt),
		method("NextQuestion", QuizServiceServer.NextQuestion),
		method("PreviousQuestion", QuizServiceServer.PreviousQuestion),
		method("SubmitQuiz", QuizServiceServer.SubmitQuiz),
		method("RetakeQuiz", QuizServiceServer.RetakeQuiz),
		method("CompleteLesson", QuizServiceServer.CompleteLesson),
		method("GetCourseProgress", QuizServiceServer.GetCourseProgress),
		method("GetNextLesson", QuizServiceServer.GetNextLesson),
		method("ListResults", QuizServiceServer.ListResults),
	},
	Metadata: "elearning/v1/quiz.json",
}

func RegisterQuizServiceServer(s grpc.ServiceRegistrar, srv QuizServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// method adapts a typed handler to a unary gRPC handler. Errors leave the handler as coded errors so they carry
// a gRPC status.
func method[Req, Resp any](name string, call func(QuizServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name

	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			handler := func(ctx context.Context, req any) (any, error) {
				resp, err := call(srv.(QuizServiceServer), ctx, req.(*Req))
				if err != nil {
					return nil, errors.Convert(err)
				}
				return resp, nil
			}

			if interceptor == nil {
				return handler(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, handler)
		},
	}
}

// Client calls the quiz service over a connection, always with the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, name string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(ContentSubtype)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+name, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SaveQuiz(ctx context.Context, in *SaveQuizRequest, opts ...grpc.CallOption) (*QuizResponse, error) {
	return invoke[QuizResponse](ctx, c, "SaveQuiz", in, opts...)
}

func (c *Client) GetQuiz(ctx context.Context, in *GetQuizRequest, opts ...grpc.CallOption) (*QuizResponse, error) {
	return invoke[QuizResponse](ctx, c, "GetQuiz", in, opts...)
}

func (c *Client) DeleteQuiz(ctx context.Context, in *DeleteQuizRequest, opts ...grpc.CallOption) (*DeleteQuizResponse, error) {
	return invoke[DeleteQuizResponse](ctx, c, "DeleteQuiz", in, opts...)
}

func (c *Client) StartQuiz(ctx context.Context, in *StartQuizRequest, opts ...grpc.CallOption) (*PlayerResponse, error) {
	return invoke[PlayerResponse](ctx, c, "StartQuiz", in, opts...)
}

func (c *Client) SelectOption(ctx context.Context, in *SelectOptionRequest, opts ...grpc.CallOption) (*PlayerResponse, error) {
	return invoke[PlayerResponse](ctx, c, "SelectOption", in, opts...)
}

func (c *Client) GetAttempt(ctx context.Context, in *PlayerRequest, opts ...grpc.CallOption) (*PlayerResponse, error) {
	return invoke[PlayerResponse](ctx, c, "GetAttempt", in, opts...)
}

func (c *Client) NextQuestion(ctx context.Context, in *PlayerRequest, opts ...grpc.CallOption) (*PlayerResponse, error) {
	return invoke[PlayerResponse](ctx, c, "NextQuestion", in, opts...)
}

func (c *Client) PreviousQuestion(ctx context.Context, in *PlayerRequest, opts ...grpc.CallOption) (*PlayerResponse, error) {
	return invoke[PlayerResponse](ctx, c, "PreviousQuestion", in, opts...)
}

func (c *Client) SubmitQuiz(ctx context.Context, in *PlayerRequest, opts ...grpc.CallOption) (*PlayerResponse, error) {
	return invoke[PlayerResponse](ctx, c, "SubmitQuiz", in, opts...)
}

func (c *Client) RetakeQuiz(ctx context.Context, in *PlayerRequest, opts ...grpc.CallOption) (*PlayerResponse, error) {
	return invoke[PlayerResponse](ctx, c, "RetakeQuiz", in, opts...)
}

func (c *Client) CompleteLesson(ctx context.Context, in *CompleteLessonRequest, opts ...grpc.CallOption) (*Completion, error) {
	return invoke[Completion](ctx, c, "CompleteLesson", in, opts...)
}

func (c *Client) GetCourseProgress(ctx context.Context, in *GetCourseProgressRequest, opts ...grpc.CallOption) (*GetCourseProgressResponse, error) {
	return invoke[GetCourseProgressResponse](ctx, c, "GetCourseProgress", in, opts...)
}

func (c *Client) GetNextLesson(ctx context.Context, in *GetNextLessonRequest, opts ...grpc.CallOption) (*GetNextLessonResponse, error) {
	return invoke[GetNextLessonResponse](ctx, c, "GetNextLesson", in, opts...)
}

func (c *Client) ListResults(ctx context.Context, in *ListResultsRequest, opts ...grpc.CallOption) (*ListResultsResponse, error) {
	return invoke[ListResultsResponse](ctx, c, "ListResults", in, opts...)
}
