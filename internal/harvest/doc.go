// Package harvest 驱动浏览器会话,采集单个页面的原始证据
//
// # 概述
//
// Harvester 对每个URL打开一个新会话,按显式状态机推进:
//
//	Idle → Navigating → ChallengeCheck → (ChallengeWaiting ⇄ ChallengeCheck) → Loaded → Evaluating → Done
//
// 任一状态都可以转入 Failed。验证页复查次数有固定上限,超过后以
// ChallengeUnresolved 失败;导航超时和导航错误分别记为 NavigationTimeout
// 和 NavigationFailed。
//
// # 浏览器能力
//
// Browser / Session / Frame 接口隔离了具体实现:
//
//   - RodBrowser: go-rod + stealth,每个会话使用独立的无痕上下文,监听CDP网络事件
//   - StaticBrowser: Colly抓取文档,不执行脚本,所有求值返回 EvalError
//
// # 求值
//
// 页面内求值都有独立超时,结果为类型化的 EvalResult。dataLayer、全局探测
// 和iframe表单的失败只降级对应字段(Degradation),不会使整个URL失败。
//
// iframe按广度优先遍历,深度和数量都有上限;跨域iframe记为 accessible=false。
package harvest
