package constants

// 通用错误消息
const (
	// 认证相关错误
	ErrUnauthorized = "未授权，请先登录"
	ErrInvalidToken = "无效的Token"

	// 订阅相关错误
	ErrSubUIDRequired = "缺少订阅UID"
	ErrInvalidSubUID  = "无效的订阅UID"
	ErrUserNotFound   = "用户不存在"
	ErrNoAvailable    = "当前没有可用节点"

	// 节点相关错误
	ErrNodeNotFound      = "节点不存在"
	ErrRelayNodeNotFound = "中转节点不存在"

	// 参数相关错误
	ErrInvalidParams  = "参数错误"
	ErrInvalidRequest = "无效请求格式"

	// 签到相关错误
	ErrAlreadyCheckedIn = "今天已经签到过了"
	ErrCheckinBusy      = "签到请求处理中，请稍后重试"

	// 系统错误
	ErrInternalServer = "服务器内部错误"
)

// 成功消息
const (
	SuccessGet     = "获取成功"
	SuccessUpdate  = "更新成功"
	SuccessCheckin = "签到成功"
)
