package async

import (
	"context"
	"sync"
	"time"

	"nebulapanel/pkg/logger"
)

// Task 表示一个异步任务
type Task struct {
	Name     string
	Handler  func(ctx context.Context) error
	Timeout  time.Duration
	RetryMax int
}

// Worker 异步任务处理器，用于心跳刷新、订阅访问记录等不影响请求延迟的写入
type Worker struct {
	taskQueue chan Task
	logger    *logger.Logger
	wg        sync.WaitGroup
}

// NewWorker 创建一个新的工作器
func NewWorker(queueSize int, logger *logger.Logger) *Worker {
	return &Worker{
		taskQueue: make(chan Task, queueSize),
		logger:    logger,
	}
}

// Start 启动工作器
func (w *Worker) Start(numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		w.wg.Add(1)
		go w.loop()
	}
}

// Stop 停止工作器，等待队列中剩余任务执行完毕
func (w *Worker) Stop() {
	close(w.taskQueue)
	w.wg.Wait()
}

// Submit 将任务加入队列；队列已满时丢弃并记录日志，不阻塞调用方
func (w *Worker) Submit(task Task) {
	select {
	case w.taskQueue <- task:
	default:
		w.logger.Warn("异步任务队列已满，任务被丢弃", "task", task.Name)
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()

	for task := range w.taskQueue {
		w.execute(task)
	}
}

// execute 执行单个任务，支持超时与重试
func (w *Worker) execute(task Task) {
	ctx := context.Background()
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	var err error
	for attempt := 0; attempt <= task.RetryMax; attempt++ {
		if attempt > 0 {
			// 简单的退避策略
			time.Sleep(time.Second * time.Duration(attempt))
		}

		if err = task.Handler(ctx); err == nil {
			return
		}

		w.logger.Error("异步任务执行失败", "task", task.Name, "attempt", attempt, "error", err)
	}
}
